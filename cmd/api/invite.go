package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	invsvc "talentgate-backend/internal/application/invitations"
	"talentgate-backend/internal/domain"
	"talentgate-backend/internal/pkg/validation"

	"github.com/spf13/cobra"
)

type inviteFlags struct {
	candidate string
	locale    string
	position  string
	country   string
	workflow  string
	ttl       time.Duration
}

var invite inviteFlags

var issueInviteCmd = &cobra.Command{
	Use:   "issue-invite",
	Short: "Create an invitation and print its one-time token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		in, err := invite.input()
		if err != nil {
			return err
		}
		c, err := loadContainer(context.Background())
		if err != nil {
			return err
		}
		defer c.Close()

		token, inv, err := c.Invitations.Issue(cmd.Context(), in)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "invitation: %s\n", inv.ID)
		fmt.Fprintf(out, "expires:    %s\n", inv.ExpiresAt.Format(time.RFC3339))
		fmt.Fprintf(out, "token:      %s\n", token)
		return nil
	},
}

func init() {
	f := issueInviteCmd.Flags()
	f.StringVar(&invite.candidate, "candidate", "", "candidate id (uuid)")
	f.StringVar(&invite.locale, "locale", "en", "question locale, e.g. en or de-AT")
	f.StringVar(&invite.position, "position", "", "position code, e.g. DRIVER")
	f.StringVar(&invite.country, "country", "", "ISO 3166-1 alpha-2 country")
	f.StringVar(&invite.workflow, "workflow", domain.KindStandard, "standard or adaptive")
	f.DurationVar(&invite.ttl, "ttl", 7*24*time.Hour, "how long the invitation stays valid")
	_ = issueInviteCmd.MarkFlagRequired("candidate")
}

func (f inviteFlags) input() (invsvc.IssueInput, error) {
	candidateID, ok := validation.ParseID(f.candidate)
	switch {
	case !ok:
		return invsvc.IssueInput{}, errors.New("--candidate must be a uuid")
	case !validation.IsValidLocale(f.locale):
		return invsvc.IssueInput{}, fmt.Errorf("invalid --locale %q", f.locale)
	case !validation.IsValidPositionCode(f.position):
		return invsvc.IssueInput{}, fmt.Errorf("invalid --position %q", f.position)
	case !validation.IsValidCountry(f.country):
		return invsvc.IssueInput{}, fmt.Errorf("invalid --country %q", f.country)
	case f.workflow != domain.KindStandard && f.workflow != domain.KindAdaptive:
		return invsvc.IssueInput{}, fmt.Errorf("unknown --workflow %q", f.workflow)
	case f.ttl <= 0:
		return invsvc.IssueInput{}, errors.New("--ttl must be positive")
	}
	return invsvc.IssueInput{
		CandidateID:  candidateID,
		Locale:       f.locale,
		PositionCode: f.position,
		Country:      f.country,
		Workflow:     f.workflow,
		TTL:          f.ttl,
	}, nil
}
