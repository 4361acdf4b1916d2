package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"schoolsite/internal/client"
	"schoolsite/internal/domain"
)

var (
	submitLat       string
	submitLng       string
	submitAddress   string
	submitLandmarks []string
	submitWait      bool
	waitInterval    time.Duration
	waitTimeout     time.Duration
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a job for a location",
	RunE: func(cmd *cobra.Command, args []string) error {
		if submitLat == "" || submitLng == "" {
			return errors.New("--lat and --lng are required")
		}
		lat, err := strconv.ParseFloat(submitLat, 64)
		if err != nil {
			return fmt.Errorf("--lat: %w", err)
		}
		lng, err := strconv.ParseFloat(submitLng, 64)
		if err != nil {
			return fmt.Errorf("--lng: %w", err)
		}
		req := domain.GenerationRequest{
			Lat:       lat,
			Lng:       lng,
			Address:   submitAddress,
			Landmarks: submitLandmarks,
		}
		if err := req.Validate(); err != nil {
			return err
		}
		ctx := cmd.Context()
		id, err := api.Submit(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		if !submitWait {
			return nil
		}

		poller := client.NewPoller(api)
		poller.Interval = waitInterval
		poller.Timeout = waitTimeout
		st, err := poller.Wait(ctx, id)
		if st != nil && (st.Data != nil || st.Status != "") {
			if perr := printJSON(cmd.OutOrStdout(), st); perr != nil {
				return perr
			}
		}
		return err
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitLat, "lat", "", "Latitude")
	submitCmd.Flags().StringVar(&submitLng, "lng", "", "Longitude")
	submitCmd.Flags().StringVar(&submitAddress, "address", "", "Address hint")
	submitCmd.Flags().StringArrayVar(&submitLandmarks, "landmark", nil, "Nearby landmark (repeatable)")
	submitCmd.Flags().BoolVar(&submitWait, "wait", false, "Poll until the job finishes")
	submitCmd.Flags().DurationVar(&waitInterval, "interval", client.DefaultPollInterval, "Polling interval with --wait")
	submitCmd.Flags().DurationVar(&waitTimeout, "timeout", client.DefaultPollTimeout, "Give up waiting after this long")
	rootCmd.AddCommand(submitCmd)
}
