// Command minidb is the command-line front door for the embeddable database
// defined by the facade package: a REPL, a batch runner, and a couple of
// maintenance subcommands, wired onto a cobra root command.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/minidb/minidb"
	"github.com/minidb/minidb/internal/exec"
)

var (
	dbPath     string
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "minidb: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "minidb [file]",
	Short: "minidb is an embeddable SQL database",
	Long: `minidb is a teaching-grade relational database: a SQL front end over a
page-based disk-resident storage engine, with transactions, a buffer pool,
and a Volcano-style executor.

With no arguments, minidb opens an interactive REPL. Given one positional
argument, it runs the named file as a batch of ';'-separated statements.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if len(args) == 1 {
			return runBatchFile(db, args[0])
		}
		return runREPL(db)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "minidb.db", "path to the database file")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "optional minidb.yaml config file")
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(statsCmd)
}

func openDB() (*minidb.DB, error) {
	var opts []minidb.Option
	if configPath != "" {
		fileOpts, err := minidb.LoadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, fileOpts...)
	}
	return minidb.Open(dbPath, opts...)
}

func runBatchFile(db *minidb.DB, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	results, err := db.ExecuteBatch(string(data))
	if err != nil {
		return err
	}
	for _, res := range results {
		printResult(os.Stdout, res)
	}
	return nil
}

func runREPL(db *minidb.DB) error {
	fmt.Println("minidb REPL. Type 'help' for meta-commands, 'exit' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	var buf strings.Builder

	prompt := func() {
		if buf.Len() == 0 {
			fmt.Print("minidb> ")
		} else {
			fmt.Print("     -> ")
		}
	}

	prompt()
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if buf.Len() == 0 {
			switch strings.ToLower(line) {
			case "exit", "quit":
				return nil
			case "help":
				printHelp()
				prompt()
				continue
			case "show tables":
				for _, name := range db.ListTables() {
					fmt.Println(name)
				}
				prompt()
				continue
			case "":
				prompt()
				continue
			}
		}

		buf.WriteString(line)
		buf.WriteByte('\n')
		if !strings.HasSuffix(line, ";") {
			prompt()
			continue
		}

		sql := buf.String()
		buf.Reset()
		results, err := db.ExecuteBatch(sql)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		} else {
			for _, res := range results {
				printResult(os.Stdout, res)
			}
		}
		prompt()
	}
	fmt.Println()
	return scanner.Err()
}

func printHelp() {
	fmt.Println(`meta-commands:
  help         show this message
  show tables  list tables in the current database
  exit, quit   leave the REPL
statements must end with ';'`)
}

func printResult(w *os.File, res *exec.QueryResult) {
	if len(res.Columns) > 0 {
		tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(res.Columns, "\t"))
		for _, row := range res.Rows {
			cells := make([]string, len(res.Columns))
			for i, col := range res.Columns {
				cells[i] = row[strings.ToUpper(col)].String()
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
		tw.Flush()
		fmt.Fprintf(w, "(%d rows, %s)\n", len(res.Rows), res.ExecutionTime.Round(time.Microsecond))
		return
	}
	if res.Message != "" {
		fmt.Fprintln(w, res.Message)
	}
}

var backupCmd = &cobra.Command{
	Use:   "backup <destination>",
	Short: "copy the database file and its catalog sidecar to destination",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Backup(args[0])
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "print buffer pool and optimizer statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		info := db.DatabaseInfo()
		perf := db.PerformanceStats()

		tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
		fmt.Fprintf(tw, "path\t%s\n", info.Path)
		fmt.Fprintf(tw, "tables\t%d\n", info.TableCount)
		fmt.Fprintf(tw, "pages\t%d\n", info.PageCount)
		fmt.Fprintf(tw, "free pages\t%d\n", info.FreePageCount)
		fmt.Fprintf(tw, "size\t%d bytes\n", info.SizeInBytes)
		fmt.Fprintf(tw, "uptime\t%s\n", info.Uptime.Round(time.Millisecond))
		fmt.Fprintf(tw, "buffer hits\t%d\n", perf.BufferStats.Hits)
		fmt.Fprintf(tw, "buffer misses\t%d\n", perf.BufferStats.Misses)
		fmt.Fprintf(tw, "buffer hit rate\t%.2f%%\n", perf.HitRate*100)
		fmt.Fprintf(tw, "evictions\t%d\n", perf.BufferStats.Evictions)
		fmt.Fprintf(tw, "constant folds\t%d\n", perf.ConstantFolds)
		fmt.Fprintf(tw, "predicate pushdowns\t%d\n", perf.PredicatePushdowns)
		fmt.Fprintf(tw, "statements executed\t%d\n", perf.StatementsExecuted)
		return tw.Flush()
	},
}
