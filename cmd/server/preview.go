package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/hoa-ledger/factory"
	"github.com/warp/hoa-ledger/generic"
)

func init() {
	rootCmd.AddCommand(previewCmd)
	previewCmd.Flags().StringP("unit", "u", "", "Unit id")
	previewCmd.Flags().StringP("amount", "a", "0", "Payment amount in major units, e.g. 1500.00")
	previewCmd.Flags().String("date", "", "Payment date YYYY-MM-DD (default today)")
	previewCmd.Flags().String("as-of", "", "Effective date for penalties YYYY-MM-DD (backdated preview)")
	previewCmd.Flags().Int("month-cutoff", -1, "Ignore bills after this fiscal month index (0-11)")
	_ = previewCmd.MarkFlagRequired("unit")
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Preview how a payment would be distributed",
	Long: `Compute the distribution of a payment over a unit's unpaid bills
against the configured database. Nothing is written.`,
	RunE: runPreview,
}

func runPreview(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	unit, _ := flags.GetString("unit")
	amountRaw, _ := flags.GetString("amount")
	dateRaw, _ := flags.GetString("date")
	asOfRaw, _ := flags.GetString("as-of")
	cutoff, _ := flags.GetInt("month-cutoff")

	amount, err := generic.ParseMajor(amountRaw)
	if err != nil {
		return err
	}
	req := generic.PaymentRequest{UnitID: generic.UnitID(unit), Amount: amount}
	if dateRaw != "" {
		if req.Date, err = generic.ParseDate(dateRaw); err != nil {
			return err
		}
	}
	if asOfRaw != "" {
		if req.AsOf, err = generic.ParseDate(asOfRaw); err != nil {
			return err
		}
	}
	if cutoff >= 0 {
		req.MonthCutoff = &cutoff
	}

	app, err := factory.Build(cfg, zap.NewNop(), prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer app.Close()

	plan, err := app.Payments.Preview(cmd.Context(), req)
	if err != nil {
		return err
	}
	printPlan(cmd.OutOrStdout(), plan)
	return nil
}

func printPlan(w io.Writer, plan generic.PaymentPlan) {
	d := plan.Distribution
	fmt.Fprintf(w, "Unit %s, fiscal year %d", d.UnitID, plan.FiscalYear)
	if d.Backdated {
		fmt.Fprintf(w, ", backdated to %s", d.AsOf)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "BILL\tBASE\tPENALTY\tUNPAID\tPAID\tSTATUS\t")
	for _, s := range d.BillSettlements {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s -> %s\t\n",
			s.BillID, s.BaseCharge, s.Penalty, s.UnpaidTotal, s.AmountPaid, s.PreviousStatus, s.NewStatus)
	}
	tw.Flush()

	fmt.Fprintf(w, "Payment %s + credit %s: %s to bills, credit used %s, overpayment %s, new credit %s\n",
		d.PaymentAmount, d.CurrentCreditBalance, d.TotalPaidToBills, d.CreditUsed, d.Overpayment, d.NewCreditBalance)
	if len(d.ExcludedBills) > 0 {
		fmt.Fprintf(w, "Excluded by month cutoff: %v\n", d.ExcludedBills)
	}
	if !plan.Summary.IntegrityCheck.IsValid {
		fmt.Fprintf(w, "WARNING: allocations total %s, expected %s\n",
			plan.Summary.IntegrityCheck.ActualTotal, plan.Summary.IntegrityCheck.ExpectedTotal)
	}
}
