package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"git.unix.lgbt/diamondburned/runmon/runmon"
	"git.unix.lgbt/diamondburned/runmon/runmon/dstat"
	"git.unix.lgbt/diamondburned/runmon/runmon/journal"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	app = kingpin.New("runmon", "Run a workload while sampling CPU and memory usage with dstat.")

	logLevel = app.Flag("log", "Log level: debug, info, warn, error.").
			Envar("RUNMON_LOG").Default("info").String()
	configPath = app.Flag("config", "Configuration file (.toml, .yaml or .yml).").
			Envar("RUNMON_CONFIG").String()
	journalPath = app.Flag("journal", "Journal file to append session events to.").
			Short('j').Envar("RUNMON_JOURNAL").String()
	journalWait = app.Flag("journal-wait", "How long to wait for another session to release the journal.").
			Envar("RUNMON_JOURNAL_WAIT").Default("0s").Duration()

	runCmd          = app.Command("run", "Run a workload while sampling.").Default()
	metricsTextfile = runCmd.Flag("metrics-textfile", "Write session metrics to this file in the Prometheus text format.").
			Envar("RUNMON_METRICS_TEXTFILE").String()
	runInterval = runCmd.Arg("interval", "Sampling interval in seconds, or a duration such as 500ms.").Required().String()
	runOutput   = runCmd.Arg("output", "File to write samples to; truncated if it exists.").Required().String()
	runWorkload = runCmd.Arg("workload", "Workload to run, a .py or .sh file.").Required().String()
	runArgs     = runCmd.Arg("args", "Arguments forwarded to the workload.").Strings()

	reportCmd  = app.Command("report", "Summarize a sample file.")
	reportFile = reportCmd.Arg("file", "Sample file written by run.").Required().ExistingFile()
	reportCSV  = reportCmd.Flag("csv", "Also write every sample to this CSV file.").String()

	lastCmd = app.Command("last", "Print the last session in the journal.")
)

func main() {
	// Everything after the workload is its own, flags included.
	app.Interspersed(false)

	command, err := app.Parse(os.Args[1:])
	if err != nil {
		app.FatalUsage("%v\n", err)
	}

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalln("invalid log level:", err)
	}
	logrus.SetLevel(level)

	switch command {
	case runCmd.FullCommand():
		err = run()
	case reportCmd.FullCommand():
		err = report()
	case lastCmd.FullCommand():
		err = last()
	}

	if err != nil {
		logrus.Fatalln(err)
	}
}

func loadConfig() (*runmon.Config, error) {
	if *configPath == "" {
		return runmon.DefaultConfig(), nil
	}
	return runmon.LoadConfig(*configPath)
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	interval, err := parseInterval(*runInterval)
	if err != nil {
		return err
	}

	var journaler runmon.Journaler = journal.NewHumanWriter(logrus.StandardLogger())

	if path := firstNonEmpty(*journalPath, cfg.Journal); path != "" {
		j, err := journal.NewFileLockJournaler(path, *journalWait)
		if err != nil {
			if errors.Is(err, journal.ErrLockedElsewhere) {
				return errors.Errorf("journal %s is in use by another runmon session", path)
			}
			return errors.Wrap(err, "failed to open journal")
		}
		defer j.Close()

		journaler = journal.MultiWriter(j, journaler)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	session, err := runmon.NewSession(runmon.SessionConfig{
		Workload: *runWorkload,
		Output:   *runOutput,
		Interval: interval,
		Args:     *runArgs,
		Config:   cfg,
	}, journaler)
	if err != nil {
		return err
	}

	report, err := session.Run(ctx)
	if err != nil {
		return err
	}

	if report.Workload.Failed() {
		// Not fatal: the samples are still worth keeping.
		logrus.Errorln(report.Workload.Err)
	}

	if path := firstNonEmpty(*metricsTextfile, cfg.MetricsTextfile); path != "" {
		m := runmon.NewMetrics(*runWorkload)
		m.Observe(report)

		if err := m.WriteTextfile(path); err != nil {
			logrus.WithError(err).Warnln("failed to write metrics")
		}
	}

	return nil
}

// parseInterval parses a whole number of seconds, or a Go duration.
func parseInterval(s string) (time.Duration, error) {
	var d time.Duration

	if n, err := strconv.Atoi(s); err == nil {
		d = time.Duration(n) * time.Second
	} else if d, err = time.ParseDuration(s); err != nil {
		return 0, errors.Errorf("invalid interval %q", s)
	}

	if d <= 0 {
		return 0, errors.Errorf("interval must be positive, got %q", s)
	}

	return d, nil
}

func report() error {
	f, err := os.Open(*reportFile)
	if err != nil {
		return err
	}
	defer f.Close()

	samples, err := dstat.Parse(f)
	if err != nil {
		return errors.Wrapf(err, "failed to parse %s", *reportFile)
	}

	sum, err := dstat.Summarize(samples)
	if err != nil {
		return errors.Wrap(err, "failed to summarize samples")
	}

	dstat.WriteTable(os.Stdout, sum)

	if *reportCSV == "" {
		return nil
	}

	out, err := os.Create(*reportCSV)
	if err != nil {
		return errors.Wrap(err, "failed to create CSV file")
	}
	defer out.Close()

	if err := dstat.WriteCSV(out, samples); err != nil {
		return err
	}

	return errors.Wrap(out.Close(), "failed to close CSV file")
}

func last() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := firstNonEmpty(*journalPath, cfg.Journal)
	if path == "" {
		return errors.New("missing -j path to journal file")
	}

	entries, err := journal.ReadLastSessionFromFile(path)
	if err != nil {
		return errors.Wrap(err, "failed to read journal")
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Event", "Data"})
	table.SetAutoWrapText(false)

	for _, entry := range entries {
		data, err := json.Marshal(entry.Event)
		if err != nil {
			return errors.Wrap(err, "failed to marshal event")
		}

		table.Append([]string{
			entry.Time.Format(time.StampMilli),
			entry.Event.Type(),
			string(data),
		})
	}

	table.Render()
	return nil
}

func firstNonEmpty(strs ...string) string {
	for _, str := range strs {
		if str != "" {
			return str
		}
	}
	return ""
}
