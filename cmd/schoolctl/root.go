package main

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"schoolsite/internal/client"
)

var (
	apiURL      string
	httpTimeout time.Duration
	api         *client.Client
)

var rootCmd = &cobra.Command{
	Use:           "schoolctl",
	Short:         "Submit and inspect fictional school generation jobs.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if api != nil {
			return nil
		}
		_ = godotenv.Load()
		if apiURL == "" {
			apiURL = os.Getenv("SCHOOLSITE_API_URL")
		}
		if apiURL == "" {
			apiURL = "http://localhost:8080"
		}
		api = client.New(apiURL, &http.Client{Timeout: httpTimeout})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "API base URL (default $SCHOOLSITE_API_URL or http://localhost:8080)")
	rootCmd.PersistentFlags().DurationVar(&httpTimeout, "http-timeout", 30*time.Second, "Timeout of a single API call")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
