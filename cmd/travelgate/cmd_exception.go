package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/yairfalse/travelgate/exception"
	"github.com/yairfalse/travelgate/types"
)

var (
	exceptionType          string
	exceptionTrip          string
	exceptionRequestor     string
	exceptionJustification string
	exceptionAmount        string
	exceptionDocs          []string
	exceptionPolicyVersion string
	exceptionContext       string

	decideApprover string
	decideOutcome  string
	decideNotes    string
)

var exceptionCmd = &cobra.Command{
	Use:   "exception",
	Short: "Create, inspect and decide policy exception requests",
}

var exceptionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Open an exception request",
	Example: `  travelgate exception create --type hotel_comparison --trip TRIP-1001 \
    --requestor avery --amount 420 \
    --justification "Conference hotel block sold out; nearest comparable property is 40% above cap."`,
	Args: cobra.NoArgs,
	RunE: runExceptionCreate,
}

var exceptionGetCmd = &cobra.Command{
	Use:   "get <request-id>",
	Short: "Print one exception request",
	Args:  cobra.ExactArgs(1),
	RunE:  runExceptionGet,
}

var exceptionDecideCmd = &cobra.Command{
	Use:     "decide <request-id>",
	Short:   "Approve or reject an exception request",
	Example: `  travelgate exception decide 6f1c... --approver dana --outcome approved`,
	Args:    cobra.ExactArgs(1),
	RunE:    runExceptionDecide,
}

func init() {
	rootCmd.AddCommand(exceptionCmd)
	exceptionCmd.AddCommand(exceptionCreateCmd, exceptionGetCmd, exceptionDecideCmd)

	f := exceptionCreateCmd.Flags()
	f.StringVar(&exceptionType, "type", "", "Exception type (advance_booking, driving_vs_flying, hotel_comparison, meal_per_diem, local_overnight)")
	f.StringVar(&exceptionTrip, "trip", "", "Trip id")
	f.StringVar(&exceptionRequestor, "requestor", "", "Requesting traveler")
	f.StringVar(&exceptionJustification, "justification", "", "Business justification, at least 50 characters")
	f.StringVar(&exceptionAmount, "amount", "", "Amount at stake")
	f.StringSliceVar(&exceptionDocs, "doc", nil, "Supporting document reference (repeatable)")
	f.StringVar(&exceptionPolicyVersion, "policy-version", "", "Policy version the request was raised under")
	f.StringVar(&exceptionContext, "context", "", "Trip context JSON evaluated when the request is decided (- for stdin)")
	_ = exceptionCreateCmd.MarkFlagRequired("type")
	_ = exceptionCreateCmd.MarkFlagRequired("requestor")

	d := exceptionDecideCmd.Flags()
	d.StringVar(&decideApprover, "approver", "", "Deciding approver")
	d.StringVar(&decideOutcome, "outcome", "", "approved or rejected")
	d.StringVar(&decideNotes, "notes", "", "Decision notes")
	_ = exceptionDecideCmd.MarkFlagRequired("approver")
	_ = exceptionDecideCmd.MarkFlagRequired("outcome")
}

func runExceptionCreate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	in := exception.CreateInput{
		Type:           exception.Type(exceptionType),
		TripID:         exceptionTrip,
		Requestor:      exceptionRequestor,
		Justification:  exceptionJustification,
		SupportingDocs: exceptionDocs,
		PolicyVersion:  exceptionPolicyVersion,
	}
	if exceptionAmount != "" {
		amount, err := decimal.NewFromString(exceptionAmount)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", exceptionAmount, err)
		}
		in.Amount = &amount
	}
	if exceptionContext != "" {
		var trip types.TripContext
		if err := readJSON(cmd, exceptionContext, &trip); err != nil {
			return err
		}
		in.Trip = &trip
	}

	req, err := a.router.Create(ctx, in)
	if err != nil {
		return err
	}
	return writeJSON(cmd, req)
}

func runExceptionGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	req, err := a.router.Get(args[0])
	if err != nil {
		return err
	}
	return writeJSON(cmd, req)
}

func runExceptionDecide(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	req, err := a.router.Decide(ctx, exception.DecideInput{
		RequestID:  args[0],
		ApproverID: decideApprover,
		Outcome:    types.ApprovalOutcome(decideOutcome),
		Notes:      decideNotes,
	})
	if err != nil {
		return err
	}
	return writeJSON(cmd, req)
}
