package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	pledges "recurring-donations/internal/pledges/domain"
	"recurring-donations/internal/pledges/interfaces"
)

var (
	projectFile       string
	projectFrequency  string
	projectInterval   int
	projectDayOfWeek  int
	projectDayOfMonth int
	projectStart      string
	projectEnd        string
	projectMax        int
	projectCount      int
	projectAmount     string
	projectCurrency   string
	projectNow        string
	projectJSON       bool
)

const maxProjectCount = 1000

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Preview the upcoming occurrences of a recurrence policy",
	Long: `Establishes a recurrence policy offline and lists its next occurrences.
The policy comes from flags or from a YAML file (--file) using the API field names.`,
	RunE: runProject,
}

func init() {
	flags := projectCmd.Flags()
	flags.StringVarP(&projectFile, "file", "f", "", "YAML policy file")
	flags.StringVar(&projectFrequency, "frequency", "monthly", "daily, weekly, monthly, quarterly or yearly")
	flags.IntVar(&projectInterval, "interval", 1, "frequency multiplier")
	flags.IntVar(&projectDayOfWeek, "day-of-week", 0, "weekly anchor, 0=Sunday")
	flags.IntVar(&projectDayOfMonth, "day-of-month", 0, "monthly anchor, 1-31")
	flags.StringVar(&projectStart, "start", "", "start date YYYY-MM-DD (default today)")
	flags.StringVar(&projectEnd, "end", "", "end date YYYY-MM-DD")
	flags.IntVar(&projectMax, "max", 0, "maximum number of occurrences")
	flags.IntVarP(&projectCount, "count", "n", 12, fmt.Sprintf("occurrences to list (at most %d)", maxProjectCount))
	flags.StringVar(&projectAmount, "amount", "0", "amount per occurrence")
	flags.StringVar(&projectCurrency, "currency", "USD", "currency code")
	flags.StringVar(&projectNow, "now", "", "evaluate as of this date YYYY-MM-DD (default today)")
	flags.BoolVar(&projectJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(projectCmd)
}

func runProject(cmd *cobra.Command, _ []string) error {
	if projectCount < 0 || projectCount > maxProjectCount {
		return fmt.Errorf("invalid --count: must be between 0 and %d", maxProjectCount)
	}
	now := time.Now().UTC()
	if projectNow != "" {
		parsed, err := time.Parse("2006-01-02", projectNow)
		if err != nil {
			return fmt.Errorf("invalid --now: %w", err)
		}
		now = parsed
	}
	amount, err := decimal.NewFromString(projectAmount)
	if err != nil {
		return fmt.Errorf("invalid --amount: %w", err)
	}

	req, err := projectRequest(cmd, now)
	if err != nil {
		return err
	}
	policy, err := req.ToPolicy()
	if err != nil {
		return err
	}
	if err := policy.Validate(); err != nil {
		return err
	}
	policy, err = pledges.Establish(policy, now)
	if err != nil {
		return err
	}

	occurrences := pledges.Project(policy, pledges.ProjectionRequest{
		PledgeID: "preview",
		Amount:   amount,
		Currency: projectCurrency,
		Count:    projectCount,
	}, now)

	out := cmd.OutOrStdout()
	if projectJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"state": policy.State(), "occurrences": occurrences})
	}
	fmt.Fprintf(out, "state: %s\n", policy.State())
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDUE\tWEEKDAY\tAMOUNT\tSTATUS")
	for _, occ := range occurrences {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s %s\t%s\n",
			occ.Sequence, occ.DueDate.Format("2006-01-02"), occ.DueDate.Weekday(),
			occ.Amount.StringFixed(2), occ.Currency, occ.Status)
	}
	return tw.Flush()
}

func projectRequest(cmd *cobra.Command, now time.Time) (interfaces.PolicyRequest, error) {
	var req interfaces.PolicyRequest
	if projectFile != "" {
		data, err := os.ReadFile(projectFile)
		if err != nil {
			return req, fmt.Errorf("read policy file: %w", err)
		}
		if err := yaml.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("parse policy file: %w", err)
		}
	} else {
		flags := cmd.Flags()
		req.Frequency = projectFrequency
		req.Interval = &projectInterval
		req.StartDate = projectStart
		req.EndDate = projectEnd
		if flags.Changed("day-of-week") {
			req.DayOfWeek = &projectDayOfWeek
		}
		if flags.Changed("day-of-month") {
			req.DayOfMonth = &projectDayOfMonth
		}
		if flags.Changed("max") {
			req.MaxOccurrences = &projectMax
		}
	}
	if req.StartDate == "" {
		req.StartDate = now.Format("2006-01-02")
	}
	return req, nil
}
