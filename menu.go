package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nonsonwune/tofhir_db/report"
	"github.com/nonsonwune/tofhir_db/store"
	"github.com/nonsonwune/tofhir_db/testspec"
)

func menuCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Interactive browser over the result store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := o.requireStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			return o.menu(ctx, st)
		},
	}
}

func (o *options) menu(ctx context.Context, st *store.Store) error {
	in := bufio.NewScanner(os.Stdin)
	for {
		displayMenu()
		var err error

		switch readChoice(in) {
		case "1":
			err = showStoredYield(ctx, st)
		case "2":
			fmt.Print("Enter board serial number: ")
			sn, convErr := strconv.Atoi(readString(in))
			if convErr != nil {
				color.Red("Invalid serial number")
				continue
			}
			err = showBoard(ctx, st, sn)
		case "3":
			err = displayHistogram(ctx, st, in)
		case "4":
			err = displayRuns(ctx, st)
		case "5":
			rep, runErr := o.run(ctx)
			if runErr != nil {
				err = runErr
				break
			}
			printRun(rep)
		case exitChoice:
			color.Green("Goodbye!")
			return nil
		default:
			color.Red("Invalid choice. Please try again.")
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			color.Red("Error: %v", err)
		}
	}
}

func displayMenu() {
	color.Cyan("\n=== TOFHIR2C Calibration Results ===")
	fmt.Println("1. Yield Summary")
	fmt.Println("2. Board Lookup")
	fmt.Println("3. Parameter Histogram")
	fmt.Println("4. Recent Runs")
	fmt.Println("5. Run Aggregation")
	fmt.Println("6. Exit")
	fmt.Print("\nEnter your choice (1-6): ")
}

func displayHistogram(ctx context.Context, st *store.Store, in *bufio.Scanner) error {
	registry := testspec.Default()
	fmt.Printf("Tests: %s\n", strings.Join(registry.Names(), ", "))
	fmt.Print("Enter test name: ")
	spec, err := registry.Lookup(readString(in))
	if err != nil {
		return err
	}

	fmt.Printf("Columns: %s\n", strings.Join(spec.OutputColumns(true), ", "))
	fmt.Print("Enter parameter: ")
	param := readString(in)

	values, err := st.LoadColumn(ctx, spec.Name, param)
	if err != nil {
		return err
	}
	report.PrintHistogram(os.Stdout, spec.Name+" "+param, report.Fill(values, report.BinningFor(spec, param, values)))
	return nil
}

func displayRuns(ctx context.Context, st *store.Store) error {
	runs, err := st.Runs(ctx, 10)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		color.Yellow("No runs recorded yet")
		return nil
	}
	report.PrintRuns(os.Stdout, runs)
	return nil
}

const exitChoice = "6"

// readChoice treats end of input as exit
func readChoice(in *bufio.Scanner) string {
	if !in.Scan() {
		return exitChoice
	}
	return strings.TrimSpace(in.Text())
}

func readString(in *bufio.Scanner) string {
	if !in.Scan() {
		return ""
	}
	return strings.TrimSpace(in.Text())
}
