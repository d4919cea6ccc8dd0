package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"captiocr/src/config"
	"captiocr/src/profile"
)

func profileStore() (*profile.Store, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return &profile.Store{Dir: cfg.ConfigDir}, cfg, nil
}

func newProfileCmd(d *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage saved capture profiles",
	}
	cmd.AddCommand(newProfileSaveCmd(d), newProfileListCmd(d), newProfileShowCmd(d), newProfileDeleteCmd(d))
	return cmd
}

func newProfileSaveCmd(d *deps) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "save <name>",
		Short: "Save a region and settings under a name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := profileStore()
			if err != nil {
				return err
			}
			start, err := resolveStart(*opts, cmd.Flags().Changed, cfg, store)
			if err != nil {
				return err
			}
			saved, err := store.Save(profile.Profile{
				Name:        args[0],
				Region:      start.Region,
				Language:    start.Language,
				Debug:       start.Debug,
				CaptionMode: start.CaptionMode,
				MinInterval: start.MinInterval.Seconds(),
				MaxInterval: start.MaxInterval.Seconds(),
				MaxSimilar:  start.MaxSimilar,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(d.out, "Saved profile %q (%s, %s)\n", saved.Name, saved.Region, saved.Language)
			return nil
		},
	}
	addSetupFlags(cmd, opts)
	return cmd
}

func newProfileListCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved profiles, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := profileStore()
			if err != nil {
				return err
			}
			list, err := store.List()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(d.out, "No saved profiles")
				return nil
			}
			w := tabwriter.NewWriter(d.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSAVED\tREGION\tLANGUAGE")
			for _, p := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, p.SavedDate, p.Region, p.Language)
			}
			return w.Flush()
		},
	}
}

func newProfileShowCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print a saved profile as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := profileStore()
			if err != nil {
				return err
			}
			p, err := store.Load(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(d.out)
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		},
	}
}

func newProfileDeleteCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := profileStore()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(d.out, "Deleted profile %q\n", args[0])
			return nil
		},
	}
}
