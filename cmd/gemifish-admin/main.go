// Command gemifish-admin inspects and maintains GemiFish contact records.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/jalliet/UM-GemiFish/internal/store"
	"github.com/jalliet/UM-GemiFish/internal/util"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagStateDir string
	flagDSN      string
)

var rootCmd = &cobra.Command{
	Use:           "gemifish-admin",
	Short:         "Administer GemiFish contact records",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Load .env before flag defaults are captured so its values act as
	// defaults that explicit flags still override.
	_ = godotenv.Load()
	rootCmd.PersistentFlags().StringVar(&flagStateDir, "state-dir", util.GetenvDefault("GEMIFISH_STATE_DIR", "/var/lib/gemifish"), "state directory for GemiFish data")
	rootCmd.PersistentFlags().StringVar(&flagDSN, "db-dsn", os.Getenv("DATABASE_URL"), "contact store DSN; empty selects the JSON file store")
	rootCmd.AddCommand(listCmd, viewCmd, deleteCmd, resetTriageCmd, setDataCmd)
}

// openStore builds the same store the server would use for the given flags.
func openStore() (store.Store, error) {
	var opts []store.Option
	if flagDSN != "" {
		if store.DetectDSNType(flagDSN) == "postgres" {
			opts = append(opts, store.WithPostgresDSN(flagDSN))
		} else {
			opts = append(opts, store.WithSQLiteDSN(flagDSN))
		}
	} else {
		opts = append(opts, store.WithFileDir(filepath.Join(flagStateDir, "data")))
	}
	opts = append(opts, store.WithUploadsDir(filepath.Join(flagStateDir, "uploads")))
	return store.NewStore(opts...)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all contact records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		summaries, err := st.List()
		if err != nil {
			return fmt.Errorf("list contacts: %w", err)
		}
		if len(summaries) == 0 {
			fmt.Println("No contacts found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CONTACT\tNAME\tAGE\tLOCATION\tTRIAGE\tMESSAGES")
		for _, s := range summaries {
			triage := "in progress"
			if s.TriageCompleted {
				triage = "complete"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
				s.ContactID, s.Name, s.Age, s.Location, triage, s.MessageCount)
		}
		return w.Flush()
	},
}

var viewCmd = &cobra.Command{
	Use:   "view <contact>",
	Short: "Show one contact record with its message history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := st.Load(args[0])
		if err != nil {
			return fmt.Errorf("load contact: %w", err)
		}

		fmt.Printf("Contact:         %s\n", rec.ContactID)
		fmt.Printf("Created:         %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05 MST"))
		fmt.Printf("Conversation:    %s\n", rec.ConversationRef)
		fmt.Printf("Triage complete: %v (step %d)\n", rec.TriageCompleted, rec.TriageStep)
		fmt.Println("Profile:")
		for _, field := range []string{"name", "age", "location", "concern"} {
			fmt.Printf("  %-10s %s\n", field+":", rec.Profile[field])
		}
		if len(rec.ExtendedData) > 0 {
			fmt.Println("Extended data:")
			for k, v := range rec.ExtendedData {
				fmt.Printf("  %s: %s\n", k, v)
			}
		}
		fmt.Printf("Messages (%d):\n", len(rec.Messages))
		for _, m := range rec.Messages {
			line := m.Content
			if m.StoredFilename != "" {
				line = fmt.Sprintf("%s [%s]", m.Content, m.StoredFilename)
			}
			fmt.Printf("  %s  %-5s  %s\n", m.Timestamp.Format("2006-01-02 15:04:05"), m.Kind, line)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <contact>",
	Short: "Delete a contact record and its stored media",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			fmt.Printf("Delete contact %q and all stored media? [y/N] ", args[0])
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(answer)) != "y" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Delete(args[0]); err != nil {
			return fmt.Errorf("delete contact: %w", err)
		}
		fmt.Printf("Deleted %s.\n", args[0])
		return nil
	},
}

var resetTriageCmd = &cobra.Command{
	Use:   "reset-triage <contact>",
	Short: "Reset a contact's triage state, keeping message history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := st.ResetTriage(args[0])
		if err != nil {
			return fmt.Errorf("reset triage: %w", err)
		}
		fmt.Printf("Triage reset for %s; %d messages preserved.\n", rec.ContactID, len(rec.Messages))
		return nil
	},
}

var setDataCmd = &cobra.Command{
	Use:   "set-data <contact> <key=value>...",
	Short: "Merge key-value pairs into a contact's extended health data",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data := make(map[string]string)
		for _, pair := range args[1:] {
			key, value, ok := strings.Cut(pair, "=")
			if !ok || key == "" {
				return fmt.Errorf("invalid pair %q, expected key=value", pair)
			}
			data[key] = value
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := st.SetExtendedData(args[0], data)
		if err != nil {
			return fmt.Errorf("set extended data: %w", err)
		}
		fmt.Printf("Updated %s; extended data now holds %d keys.\n", rec.ContactID, len(rec.ExtendedData))
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	deleteCmd.Flags().Bool("force", false, "skip the confirmation prompt")
}
