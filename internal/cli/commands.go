package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cam3ron2/timetrack/internal/timelog"
	"github.com/spf13/cobra"
)

func newMembersCommand(flags *rootFlags, opts Options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "members ORG",
		Short: "List organization members visible to the token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(flags, opts, true)
			if err != nil {
				return err
			}
			defer s.close()

			members, err := s.runtime.Services().Members.ListMembers(cmd.Context(), args[0], s.token)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(members)
			}
			for _, member := range members {
				_, _ = fmt.Fprintln(out, member.Login)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print members as JSON")
	return cmd
}

func newCheckAccessCommand(flags *rootFlags, opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "check-access OWNER/REPO",
		Short: "Check that the token can log time on a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, err := timelog.ParseRepoRef(args[0])
			if err != nil {
				return err
			}
			s, err := openSession(flags, opts, true)
			if err != nil {
				return err
			}
			defer s.close()

			result := s.runtime.Services().Access.Check(cmd.Context(), owner, repo, s.token)
			if !result.HasAccess {
				return errors.New(result.Error)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s/%s: write access granted\n", owner, repo)
			return err
		},
	}
}

func newLogCommand(flags *rootFlags, opts Options) *cobra.Command {
	var (
		hours       float64
		description string
	)
	cmd := &cobra.Command{
		Use:   "log OWNER/REPO#NUMBER",
		Short: "Record tracked time as an issue comment",
		Example: `
  timetrack log acme/api#42 --hours 2
  timetrack log acme/api#42 --hours 0.75 --description "pairing on the parser"
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, number, err := timelog.ParseIssueRef(args[0])
			if err != nil {
				return err
			}
			if err := timelog.ValidateHours(hours); err != nil {
				return err
			}
			s, err := openSession(flags, opts, true)
			if err != nil {
				return err
			}
			defer s.close()

			comment, err := s.runtime.Services().TimeLog.LogTime(cmd.Context(), timelog.LogRequest{
				Owner:       owner,
				Repo:        repo,
				Number:      number,
				Hours:       hours,
				Description: description,
				Token:       s.token,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Logged %s on %s/%s#%d: %s\n", formatLogged(comment.Hours), owner, repo, number, comment.HTMLURL)
			return err
		},
	}
	cmd.Flags().Float64Var(&hours, "hours", 0, "hours to record, in quarter-hour steps (required)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "optional note added to the comment")
	_ = cmd.MarkFlagRequired("hours")
	return cmd
}

func newWhoAmICommand(flags *rootFlags, opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the GitHub user behind the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(flags, opts, true)
			if err != nil {
				return err
			}
			defer s.close()

			identity, err := s.runtime.Services().TimeLog.WhoAmI(cmd.Context(), s.token)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if identity.Name != "" {
				_, err = fmt.Fprintf(out, "%s (%s)\n", identity.Login, identity.Name)
				return err
			}
			_, err = fmt.Fprintln(out, identity.Login)
			return err
		},
	}
}

func formatLogged(hours float64) string {
	if hours == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%g hours", hours)
}
