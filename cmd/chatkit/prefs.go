package main

import (
	"fmt"
	"strconv"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/ClassPulse/chatkit"
)

func init() {
	rootCmd.AddCommand(prefsCmd)
	prefsCmd.AddCommand(prefsShowCmd)
	prefsCmd.AddCommand(prefsSetCmd)
}

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Manage chat preferences",
	Long:  "View or modify the chat preferences stored in ~/.chatkit/preferences.toml.\nChanges take effect on the next refresh; no reconnect is required.",
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := prefsPath()
		if err != nil {
			return err
		}
		store := &chatkit.FilePreferenceStore{Path: path}
		prefs, err := store.Load()
		if err != nil {
			return err
		}
		data, err := toml.Marshal(prefs)
		if err != nil {
			return fmt.Errorf("cannot marshal preferences: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <key> <true|false>",
	Short: "Toggle a preference",
	Long: "Toggle a preference by key.\n" +
		"Keys: auto_reconnect, show_typing_indicators, show_online_status, sound_notifications, push_notifications\n" +
		"Example: chatkit prefs set sound_notifications false",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		value, err := strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("value must be true or false: %w", err)
		}

		path, err := prefsPath()
		if err != nil {
			return err
		}
		store := &chatkit.FilePreferenceStore{Path: path}
		prefs, err := store.Load()
		if err != nil {
			return err
		}

		switch key {
		case "auto_reconnect":
			prefs.AutoReconnect = value
		case "show_typing_indicators":
			prefs.ShowTypingIndicators = value
		case "show_online_status":
			prefs.ShowOnlineStatus = value
		case "sound_notifications":
			prefs.SoundNotifications = value
		case "push_notifications":
			prefs.PushNotifications = value
		default:
			return fmt.Errorf("unknown preference %q", key)
		}

		if err := store.Save(prefs); err != nil {
			return err
		}
		fmt.Printf("Set %s = %v\n", key, value)
		return nil
	},
}
