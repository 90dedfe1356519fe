package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"picturebook/internal/cli/scheme/colours"
	"picturebook/internal/config"
	"picturebook/internal/story/nest"
)

func main() {
	app := nest.NewPictureBook(os.Stdin, os.Stdout)

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		app.Shutdown()
		fmt.Println("\n" + colours.Warning.Sprint("👋 Goodbye! Sweet dreams! 🌙"))
		os.Exit(0)
	}()

	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "picturebook",
		Short: "🖼️ Turn pictures into stories",
		Long: `
┌─────────────────────────────────────┐
│  📚 Welcome to PictureBook! 🖼️      │
│  Every picture has a story          │
│  Read it, translate it, hear it ✨  │
└─────────────────────────────────────┘

PictureBook sends an image to a story service, types the story out as it
arrives, and can caption it, translate it and read it aloud.
		`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Init(cfgFile); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := config.ConfigureLogging(cfg.Log); err != nil {
				return err
			}
			return app.Configure(cfg)
		},
		Run: func(cmd *cobra.Command, args []string) {
			app.ShowWelcome()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default is $HOME/.picturebook/picturebook.yaml)")
	rootCmd.PersistentFlags().String("backend", "", "Story service base URL")
	rootCmd.PersistentFlags().String("tts", "", "Speech engine (auto, espeak, say, sapi, googleclassic, openai, mock, none)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	app.AddCommands(rootCmd)

	viper.BindPFlag("backend.url", rootCmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag("tts.type", rootCmd.PersistentFlags().Lookup("tts"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	if tell, _, err := rootCmd.Find([]string{"tell"}); err == nil {
		viper.BindPFlag("story.category", tell.Flags().Lookup("category"))
		viper.BindPFlag("story.word_limit", tell.Flags().Lookup("words"))
	}

	if err := rootCmd.Execute(); err != nil {
		colours.Error.Printf("❌ Error: %v\n", err)
		logrus.WithError(err).Debug("command failed")
		os.Exit(1)
	}
}
