package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	serverKey = "server"
	tokenKey  = "token"
	userKey   = "user_id"
	nameKey   = "name"
)

// NewRootCommand builds roomctl. Settings come from flags, ROOMCTL_*
// environment variables and $HOME/.roomctl.yaml, in that order.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:           "roomctl",
		Short:         "Create, inspect and join meeting rooms",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile)
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.roomctl.yaml)")
	root.PersistentFlags().String("server", "http://localhost:8080", "meeting server base URL")
	root.PersistentFlags().String("token", "", "bearer token issued by the account service")
	root.PersistentFlags().String("user", "", "user id sent when the server runs without token auth")
	root.PersistentFlags().String("name", "", "display name sent when the server runs without token auth")

	_ = v.BindPFlag(serverKey, root.PersistentFlags().Lookup("server"))
	_ = v.BindPFlag(tokenKey, root.PersistentFlags().Lookup("token"))
	_ = v.BindPFlag(userKey, root.PersistentFlags().Lookup("user"))
	_ = v.BindPFlag(nameKey, root.PersistentFlags().Lookup("name"))
	v.SetDefault(serverKey, "http://localhost:8080")

	client := func() (*Client, error) {
		token, user := v.GetString(tokenKey), v.GetString(userKey)
		if token == "" && user == "" {
			return nil, errors.New("either --token or --user is required")
		}
		return NewClient(v.GetString(serverKey), token, user, v.GetString(nameKey)), nil
	}

	root.AddCommand(
		newRoomCommand(client),
		newJoinCommand(client),
		newRecordingsCommand(client),
		newTokenCommand(),
	)
	return root
}

func initConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigType("yaml")
		v.SetConfigName(".roomctl")
	}

	v.SetEnvPrefix("ROOMCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// Execute runs roomctl and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
