package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ClassPulse/chatkit"
)

func init() {
	chatCmd.Flags().IntVar(&chatRoom, "room", 0, "room to join (defaults to default.room_id)")
	chatCmd.Flags().IntVar(&chatUser, "user", 0, "user id (defaults to auth.user_id)")
	chatCmd.Flags().StringVar(&chatToken, "token", "", "auth token (defaults to auth.token)")
	chatCmd.Flags().StringVar(&chatURL, "url", "", "server base URL (defaults to default.base_url)")
	rootCmd.AddCommand(chatCmd)
}

var (
	chatRoom  int
	chatUser  int
	chatToken string
	chatURL   string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join a chat room in the terminal",
	Long:  "Open a terminal chat session against the configured server.\nFlags override the stored configuration.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if chatURL == "" {
			chatURL = cfg.Default.BaseURL
		}
		if chatRoom == 0 {
			chatRoom = cfg.Default.RoomID
		}
		if chatUser == 0 {
			chatUser = cfg.Auth.UserID
		}
		if chatToken == "" {
			chatToken = cfg.Auth.Token
		}
		if chatURL == "" {
			return fmt.Errorf("no server URL; run 'chatkit config set default.base_url <url>' or pass --url")
		}
		if chatRoom == 0 {
			return fmt.Errorf("no room; run 'chatkit config set default.room_id <id>' or pass --room")
		}
		return runChat(chatURL, chatRoom, chatUser, chatToken)
	},
}

// ============================================================================
// Event bridge
// ============================================================================

// The TUI owns stdout, so listener callbacks forward everything into the
// bubbletea program as typed messages.
type (
	incomingMsg chatkit.Message
	typingMsg   chatkit.TypingIndicator
	statusMsg   chatkit.UserStatus
	connMsg     bool
	errMsg      string
)

func runChat(baseURL string, roomID, userID int, token string) error {
	dir, err := configDir()
	if err != nil {
		return err
	}
	logFile, err := os.OpenFile(filepath.Join(dir, "chatkit.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("cannot open log file: %w", err)
	}
	defer logFile.Close()
	logger := zerolog.New(logFile).With().Timestamp().Logger()

	prefs, err := prefsPath()
	if err != nil {
		return err
	}
	client := chatkit.NewClient(&chatkit.Config{
		BaseURL:     baseURL,
		Preferences: &chatkit.FilePreferenceStore{Path: prefs},
		Logger:      &logger,
	})
	defer client.Disconnect()

	p := tea.NewProgram(newChatModel(client, roomID), tea.WithAltScreen())

	client.OnMessage(func(m chatkit.Message) { p.Send(incomingMsg(m)) })
	client.OnTyping(func(ti chatkit.TypingIndicator) { p.Send(typingMsg(ti)) })
	client.OnUserStatus(func(us chatkit.UserStatus) { p.Send(statusMsg(us)) })
	client.OnConnectionChange(func(up bool) { p.Send(connMsg(up)) })
	client.OnError(func(msg string) { p.Send(errMsg(msg)) })

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := client.Connect(ctx, userID, token); err != nil {
			logger.Error().Err(err).Msg("initial connect failed")
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("ui error: %w", err)
	}
	return nil
}

// ============================================================================
// Model
// ============================================================================

var (
	senderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	systemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	typingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)

type chatModel struct {
	client    *chatkit.Client
	roomID    int
	viewport  viewport.Model
	textInput textinput.Model
	lines     []string
	typing    string
	connected bool
	wasEmpty  bool
	ready     bool
}

func newChatModel(client *chatkit.Client, roomID int) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.Focus()
	ti.CharLimit = 512
	ti.Width = 40

	return chatModel{
		client:    client,
		roomID:    roomID,
		textInput: ti,
		wasEmpty:  true,
	}
}

func (m chatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m chatModel) appendLine(line string) chatModel {
	m.lines = append(m.lines, line)
	if m.ready {
		m.viewport.SetContent(strings.Join(m.lines, "\n"))
		m.viewport.GotoBottom()
	}
	return m
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			content := m.textInput.Value()
			if content == "" {
				return m, nil
			}
			m.textInput.SetValue("")
			m.wasEmpty = true
			if err := m.client.SendMessage(m.roomID, content); err != nil {
				return m.appendLine(errorStyle.Render("send failed: " + err.Error())), nil
			}
			return m, nil
		default:
			// First keystroke of a burst signals typing; the client clears
			// it automatically after the quiet window.
			if m.wasEmpty && m.connected {
				m.wasEmpty = false
				_ = m.client.SendTypingIndicator(m.roomID, true)
			}
		}

	case tea.WindowSizeMsg:
		footerHeight := 4
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-footerHeight)
			m.viewport.SetContent(strings.Join(m.lines, "\n"))
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - footerHeight
		}
		m.textInput.Width = msg.Width

	case connMsg:
		m.connected = bool(msg)
		if m.connected {
			m = m.appendLine(systemStyle.Render("connected"))
			if err := m.client.JoinRoom(m.roomID); err != nil {
				m = m.appendLine(errorStyle.Render("join failed: " + err.Error()))
			}
		} else {
			m = m.appendLine(systemStyle.Render("disconnected"))
		}

	case incomingMsg:
		line := fmt.Sprintf("%s %s %s",
			systemStyle.Render(msg.SentAt.Local().Format("15:04")),
			senderStyle.Render(msg.SenderName+":"),
			msg.Content)
		m = m.appendLine(line)
		m.typing = ""

	case typingMsg:
		if msg.RoomID == m.roomID {
			if msg.IsTyping {
				name := msg.UserName
				if name == "" {
					name = fmt.Sprintf("User %d", msg.UserID)
				}
				m.typing = name + " is typing..."
			} else {
				m.typing = ""
			}
		}

	case statusMsg:
		m = m.appendLine(systemStyle.Render(
			fmt.Sprintf("user %d is now %s", msg.UserID, msg.Status)))

	case errMsg:
		m = m.appendLine(errorStyle.Render(string(msg)))
	}

	m.textInput, tiCmd = m.textInput.Update(msg)
	if m.ready {
		m.viewport, vpCmd = m.viewport.Update(msg)
	}
	return m, tea.Batch(tiCmd, vpCmd)
}

func (m chatModel) View() string {
	if !m.ready {
		return "\n  Connecting..."
	}
	typing := m.typing
	if typing == "" {
		typing = " "
	}
	return fmt.Sprintf("%s\n%s\n%s\n%s",
		m.viewport.View(),
		strings.Repeat("─", m.viewport.Width),
		typingStyle.Render(typing),
		m.textInput.View(),
	)
}
