package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/agrisense/internal/profile"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "agrisense",
	Short: "Multilingual agricultural assistant for Gujarat",
	Long: `agrisense routes farmer questions in English, Hindi and Gujarati to
weather forecasts, mandi prices, crop disease detection or a scoped chat
model, tolerating misspelled and transliterated district and crop names.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger(viper.GetString("mode"), viper.GetBool("debug"))
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./agrisense.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev"`)
	rootCmd.PersistentFlags().String("gazetteer", "", "gazetteer YAML overriding the embedded district and crop tables")
	rootCmd.PersistentFlags().String("lexicon", "", "lexicon YAML overriding the embedded keyword and message tables")
	rootCmd.PersistentFlags().String("language", "", "default response language (en, hi, gu)")
	rootCmd.PersistentFlags().Bool("strict-gate", true, "let restricted topics veto weather and price questions too")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("mode", rootCmd.PersistentFlags().Lookup("mode"))
	_ = viper.BindPFlag("gazetteer_path", rootCmd.PersistentFlags().Lookup("gazetteer"))
	_ = viper.BindPFlag("lexicon_path", rootCmd.PersistentFlags().Lookup("lexicon"))
	_ = viper.BindPFlag("default_language", rootCmd.PersistentFlags().Lookup("language"))
	_ = viper.BindPFlag("strict_gate", rootCmd.PersistentFlags().Lookup("strict-gate"))

	rootCmd.AddCommand(serveCmd, routeCmd, batchCmd)
}

// initConfig loads .env, then the config file and AGRISENSE_* variables.
func initConfig() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("agrisense")
	}

	viper.SetEnvPrefix(strings.TrimSuffix(profile.EnvPrefix, "_"))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}
}

// setupLogger installs a JSON handler in prod and a text handler otherwise.
func setupLogger(mode string, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(mode), "prod") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
