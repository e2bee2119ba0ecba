package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/Kim-Ziho/doorbell-camera/catalog"
	"github.com/Kim-Ziho/doorbell-camera/encryption"
	"github.com/spf13/cobra"
)

var (
	listOrigin string
	listLimit  int
	listSince  string

	decryptOut        string
	decryptPassphrase string
)

var clipsCmd = &cobra.Command{
	Use:   "clips",
	Short: "Inspect recorded clips",
}

var clipsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalogued clips, newest first",
	Args:  cobra.NoArgs,
	RunE:  runClipsList,
}

var clipsDecryptCmd = &cobra.Command{
	Use:   "decrypt <path>",
	Short: "Decrypt an encrypted clip",
	Args:  cobra.ExactArgs(1),
	RunE:  runClipsDecrypt,
}

func init() {
	clipsListCmd.Flags().StringVar(&listOrigin, "origin", "", "Only list clips of this origin (auto or manual)")
	clipsListCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum number of clips to list, 0 for all")
	clipsListCmd.Flags().StringVar(&listSince, "since", "", "Only list clips opened after this time (RFC3339) or within this duration (e.g. 24h)")

	clipsDecryptCmd.Flags().StringVarP(&decryptOut, "out", "o", "", "Output path (default strips the .enc suffix)")
	clipsDecryptCmd.Flags().StringVar(&decryptPassphrase, "passphrase", "", "Passphrase (default from config)")

	clipsCmd.AddCommand(clipsListCmd, clipsDecryptCmd)
}

// parseSince accepts an absolute RFC3339 time or a duration back from now
func parseSince(s string, now time.Time) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return nil, fmt.Errorf("invalid --since value %q: expected RFC3339 time or a positive duration", s)
	}
	t := now.Add(-d)
	return &t, nil
}

func runClipsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Storage.DatabasePath == "" {
		return fmt.Errorf("clip catalog is disabled (storage.database_path is empty)")
	}

	since, err := parseSince(listSince, time.Now())
	if err != nil {
		return err
	}

	db, err := catalog.OpenDB(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	repo, err := catalog.NewSQLiteClipRepository(db)
	if err != nil {
		return err
	}

	clips, total, err := repo.Query(cmd.Context(), catalog.ClipQuery{
		Origin: listOrigin,
		Since:  since,
		Limit:  listLimit,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OPENED\tORIGIN\tDURATION\tFRAMES\tREASON\tSIZE\tPATH")
	for _, c := range clips {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			c.OpenedAt.Local().Format("2006-01-02 15:04:05"),
			c.Origin,
			c.Duration.Round(100*time.Millisecond),
			c.Frames,
			c.Reason,
			formatBytes(c.SizeBytes),
			c.Path,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d clips\n", len(clips), total)
	return nil
}

func runClipsDecrypt(cmd *cobra.Command, args []string) error {
	passphrase := decryptPassphrase
	if passphrase == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		passphrase = cfg.Storage.EncryptionPassphrase
	}
	if passphrase == "" {
		return fmt.Errorf("no passphrase given and none configured")
	}

	enc, err := encryption.NewClipEncryptor(passphrase)
	if err != nil {
		return err
	}
	out, err := enc.DecryptFile(args[0], decryptOut)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "decrypted %s -> %s\n", args[0], out)
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

