package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/joshuapare/xfercache/sizeclass"
)

var classesConfig string

func init() {
	cmd := newClassesCmd()
	cmd.Flags().StringVar(&classesConfig, "config", "default", "Size-class config (default, small)")
	rootCmd.AddCommand(cmd)
}

func newClassesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classes",
		Short: "Print the size-class table",
		Long: `The classes command prints every size class with its object size, span
pages, batch size and transfer cache capacities.

Example:
  xferctl classes
  xferctl classes --config small
  xferctl classes --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClasses()
		},
	}
}

// classRow is the JSON form of one class.
type classRow struct {
	Class           int `json:"class"`
	Size            int `json:"size"`
	Pages           int `json:"pages"`
	ObjectsPerSpan  int `json:"objects_per_span"`
	BatchSize       int `json:"batch_size"`
	InitialCapacity int `json:"initial_capacity"`
	MaxCapacity     int `json:"max_capacity"`
}

func tableForName(name string) (*sizeclass.Table, error) {
	switch name {
	case "", "default":
		return sizeclass.New(sizeclass.ConfigDefault), nil
	case "small":
		return sizeclass.New(sizeclass.ConfigSmall), nil
	default:
		return nil, fmt.Errorf("unknown size-class config %q (want default or small)", name)
	}
}

func classRows(t *sizeclass.Table) []classRow {
	rows := make([]classRow, 0, t.NumClasses()-1)
	for cl := 1; cl < t.NumClasses(); cl++ {
		info := t.Info(cl)
		rows = append(rows, classRow{
			Class:           cl,
			Size:            info.Size,
			Pages:           info.Pages,
			ObjectsPerSpan:  t.ObjectsPerSpan(cl),
			BatchSize:       info.BatchSize,
			InitialCapacity: info.InitialCapacity,
			MaxCapacity:     info.MaxCapacity,
		})
	}
	return rows
}

func runClasses() error {
	t, err := tableForName(classesConfig)
	if err != nil {
		return err
	}
	rows := classRows(t)
	printVerbose("%s\n", t)

	if jsonOut {
		return printJSON(rows)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "class\tsize\tpages\tobjs/span\tbatch\tinitial\tmax\t\n")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t%d\t\n",
			r.Class, r.Size, r.Pages, r.ObjectsPerSpan, r.BatchSize, r.InitialCapacity, r.MaxCapacity)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	printInfo("\n%d classes, %d initial slots\n", len(rows), t.TotalInitialCapacity())
	return nil
}
