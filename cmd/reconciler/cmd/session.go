package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"treasury-reconciler/internal/persistence"
	"treasury-reconciler/internal/session"
	"treasury-reconciler/pkg/logger"
)

var sessionNotes session.Notes

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage saved reconciliation sessions",
	Long: `Sessions are created by 'reconciler reconcile --session NAME' and move
through in_progress, completed, certified and archived. Certified and archived
sessions no longer accept notes.`,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSessions(cmd, false, func(mgr *session.Manager) error {
			printSessions(cmd.OutOrStdout(), mgr.List())
			return nil
		})
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSessions(cmd, false, func(mgr *session.Manager) error {
			s, err := mgr.Get(args[0])
			if err != nil {
				return err
			}
			printSession(cmd.OutOrStdout(), s)
			return nil
		})
	},
}

// transitionCmd builds the complete/certify/archive subcommands
func transitionCmd(use, short string, apply func(mgr *session.Manager, id string) (*session.Session, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessions(cmd, true, func(mgr *session.Manager) error {
				s, err := apply(mgr, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s is now %s\n", s.ID, s.Status)
				return nil
			})
		},
	}
}

var sessionNotesCmd = &cobra.Command{
	Use:   "notes ID",
	Short: "Replace the compliance notes of an editable session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSessions(cmd, true, func(mgr *session.Manager) error {
			if err := mgr.UpdateNotes(args[0], sessionNotes); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Notes updated for %s\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(
		sessionListCmd,
		sessionShowCmd,
		transitionCmd("complete", "Mark an in-progress session completed", func(mgr *session.Manager, id string) (*session.Session, error) {
			return mgr.Complete(id)
		}),
		transitionCmd("certify", "Certify a completed session", func(mgr *session.Manager, id string) (*session.Session, error) {
			return mgr.Certify(id, appConfig.User)
		}),
		transitionCmd("archive", "Archive a completed or certified session", func(mgr *session.Manager, id string) (*session.Session, error) {
			return mgr.Archive(id)
		}),
		sessionNotesCmd,
	)

	sessionNotesCmd.Flags().StringVar(&sessionNotes.Compliance, "compliance", "", "compliance notes")
	sessionNotesCmd.Flags().StringVar(&sessionNotes.MaterialDiscrepancies, "discrepancies", "", "material discrepancies")
	sessionNotesCmd.Flags().StringVar(&sessionNotes.InternalControls, "controls", "", "internal controls assessment")
}

// restoreSessions builds a manager holding the saved history
func restoreSessions(ctx context.Context, repo *persistence.SessionRepository, log logger.Logger) (*session.Manager, error) {
	saved, err := repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	mgr := session.NewManager(session.WithLogger(log))
	mgr.Restore(saved)
	return mgr, nil
}

// withSessions loads the history, runs fn and saves the history back when
// save is set and fn succeeded.
func withSessions(cmd *cobra.Command, save bool, fn func(mgr *session.Manager) error) error {
	return withStorage(cmd, func(ctx context.Context, kv persistence.KeyValueStore, log logger.Logger) error {
		repo := persistence.NewSessionRepository(kv, log)
		mgr, err := restoreSessions(ctx, repo, log)
		if err != nil {
			return err
		}
		if err := fn(mgr); err != nil {
			return err
		}
		if !save {
			return nil
		}
		return repo.Save(ctx, mgr.List())
	})
}

func printSessions(w io.Writer, sessions []*session.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions saved")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPERIOD\tSTATUS\tPROGRESS\tCREATED BY")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f%%\t%s\n",
			s.ID, s.Name, s.Period, s.Status, s.Summary.ReconciliationProgress, s.CreatedBy)
	}
	tw.Flush()
}

func printSession(w io.Writer, s *session.Session) {
	fmt.Fprintf(w, "%s  %s\n", s.ID, s.Name)
	fmt.Fprintf(w, "Period:   %s\n", s.Period)
	fmt.Fprintf(w, "Status:   %s\n", s.Status)
	fmt.Fprintf(w, "Created:  %s by %s\n", s.CreatedAt.Format("2006-01-02 15:04"), s.CreatedBy)
	if s.Certification != nil {
		fmt.Fprintf(w, "Certified: %s by %s\n", s.Certification.CertifiedAt.Format("2006-01-02 15:04"), s.Certification.CertifiedBy)
	}
	st := s.Summary
	fmt.Fprintf(w, "Ledger:   %d of %d reconciled (%.1f%%)\n",
		st.ReconciledLedgerTransactions, st.TotalLedgerTransactions, st.ReconciliationProgress)
	fmt.Fprintf(w, "Bank:     %d of %d reconciled, %d NRIT\n",
		st.ReconciledBankTransactions, st.TotalBankTransactions, st.NritCount)
	fmt.Fprintf(w, "Discrepancy: %s\n", st.Discrepancy.StringFixed(2))
	if len(s.Actions) > 0 {
		fmt.Fprintf(w, "Actions:  %d\n", len(s.Actions))
	}
	notes := []string{s.Notes.Compliance, s.Notes.MaterialDiscrepancies, s.Notes.InternalControls}
	if strings.TrimSpace(strings.Join(notes, "")) != "" {
		fmt.Fprintf(w, "Notes:\n  compliance: %s\n  discrepancies: %s\n  controls: %s\n", notes[0], notes[1], notes[2])
	}
}
