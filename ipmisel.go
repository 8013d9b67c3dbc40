/* ipmisel.go: the ipmisel executable reads, queries and waits on IPMI system event logs
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coreos/go-systemd/daemon"
	"github.com/kraken-hpc/ipmisel/lib/archive"
	"github.com/kraken-hpc/ipmisel/lib/config"
	"github.com/kraken-hpc/ipmisel/lib/ipmi"
	"github.com/kraken-hpc/ipmisel/lib/library"
	"github.com/kraken-hpc/ipmisel/lib/mapping"
	"github.com/kraken-hpc/ipmisel/lib/sel"
	"github.com/kraken-hpc/ipmisel/lib/util"
	"github.com/kraken-hpc/ipmisel/modules/restapi"
	log "github.com/sirupsen/logrus"
)

const defaultConfig = "ipmisel.yaml"

// Globals
var verbose bool
var debug bool
var quiet bool
var robot bool
var cfgFile string
var alias string
var archiveFile string

var logger = log.New()

func pError(f string, args ...interface{}) {
	logger.Errorf(f, args...)
}

func pFail(f string, args ...interface{}) {
	logger.Errorf("FAIL: "+f, args...)
	os.Exit(1)
}

func setupLogger(cfg *config.Config) {
	if robot {
		logger.SetFormatter(util.KeywordFormatter{})
	} else {
		logger.SetFormatter(&util.LineFormatter{Module: "ipmisel"})
	}
	logger.SetOutput(os.Stderr)
	logger.SetLevel(cfg.Level())
	switch {
	case quiet:
		logger.SetLevel(log.WarnLevel)
	case debug:
		logger.SetLevel(log.TraceLevel)
	case verbose:
		logger.SetLevel(log.DebugLevel)
	}
}

func readConfig() *config.Config {
	cfg, err := config.ReadConfig(cfgFile)
	if err != nil {
		if _, serr := os.Stat(cfgFile); os.IsNotExist(serr) && cfgFile == defaultConfig {
			return config.Default()
		}
		pFail("%v", err)
	}
	return cfg
}

func openLibrary(cfg *config.Config) *library.Library {
	lib, err := library.NewFromConfig(cfg, library.WithLogger(logger))
	if err != nil {
		pFail("%v", err)
	}
	if archiveFile != "" {
		if _, err = lib.Open(&config.Connection{Interface: config.InterfaceArchive, Archive: archiveFile}); err != nil {
			pFail("%v", err)
		}
	}
	if alias != "" {
		if _, err = lib.Switch(alias); err != nil {
			pFail("%v", err)
		}
	}
	if _, err = lib.Active(); err != nil {
		pFail("no connections configured; use -c or -archive")
	}
	return lib
}

type filterFlags struct {
	sensorType   string
	sensorNumber string
}

func (f *filterFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.sensorType, "t", "", "sensor type, by name (e.g. \"Power Supply\") or number")
	fs.StringVar(&f.sensorNumber, "n", "", "sensor number")
}

func (f *filterFlags) filter() (*sel.Filter, error) {
	switch {
	case f.sensorType != "" && f.sensorNumber != "":
		return nil, fmt.Errorf("-t and -n are mutually exclusive")
	case f.sensorType != "":
		t, err := mapping.FindSensorType(f.sensorType)
		if err != nil {
			return nil, err
		}
		r := sel.BySensorType(t)
		return &r, nil
	case f.sensorNumber != "":
		n, err := util.Uint8AnyBase(f.sensorNumber)
		if err != nil {
			return nil, err
		}
		r := sel.BySensorNumber(n)
		return &r, nil
	}
	return nil, nil
}

func parseFlags(fs *flag.FlagSet, usage string, args []string) {
	var help bool
	fs.BoolVar(&help, "h", false, "print this usage")
	fs.Usage = func() {
		fmt.Println("Usage: ipmisel <opts> " + usage)
		fs.PrintDefaults()
	}
	fs.Parse(args)
	if help {
		fs.Usage()
		os.Exit(0)
	}
	if len(fs.Args()) != 0 {
		pError("unknown option: %s", fs.Args()[0])
		fs.Usage()
		os.Exit(1)
	}
}

func printRecord(r ipmi.SelRecord, hex bool) {
	if hex {
		fmt.Printf("%s%x\n", sel.EntryPrefix, r.Raw())
		return
	}
	fmt.Println(r)
}

// Commands

func cmdDump(ctx context.Context, lib *library.Library, args []string) {
	var hex bool
	var ff filterFlags
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	fs.BoolVar(&hex, "x", false, "print records as hex SEL entries")
	ff.register(fs)
	parseFlags(fs, "dump [-h] [-x] [-t type | -n number]", args)
	f, err := ff.filter()
	if err != nil {
		pFail("%v", err)
	}
	if _, err = lib.FetchSEL(ctx); err != nil {
		pFail("%v", err)
	}
	c, _ := lib.Active()
	records := c.Store.Records()
	if f != nil {
		if records, err = c.Engine.Find(*f); err != nil {
			pFail("%v", err)
		}
	}
	for _, r := range records {
		printRecord(r, hex)
	}
}

func cmdCount(ctx context.Context, lib *library.Library, args []string) {
	var ff filterFlags
	fs := flag.NewFlagSet("count", flag.ExitOnError)
	ff.register(fs)
	parseFlags(fs, "count [-h] [-t type | -n number]", args)
	f, err := ff.filter()
	if err != nil {
		pFail("%v", err)
	}
	if _, err = lib.FetchSEL(ctx); err != nil {
		pFail("%v", err)
	}
	c, _ := lib.Active()
	var n int
	if f == nil {
		n, err = c.Engine.CountTotal()
	} else {
		n, err = c.Engine.Count(*f)
	}
	if err != nil {
		pFail("%v", err)
	}
	fmt.Println(n)
}

func cmdSelect(ctx context.Context, lib *library.Library, args []string) {
	var ff filterFlags
	var index, recordID, offset, data, mask string
	fs := flag.NewFlagSet("select", flag.ExitOnError)
	ff.register(fs)
	fs.StringVar(&index, "i", "1", "1-based index among matches, negative counts from the end")
	fs.StringVar(&recordID, "r", "", "select by record id")
	fs.StringVar(&offset, "o", "", "select by 0-based offset into the SEL")
	fs.StringVar(&data, "expect-data", "", "fail unless the selected event data matches")
	fs.StringVar(&mask, "mask", "", "mask applied to -expect-data (default 0xffffff)")
	parseFlags(fs, "select [-h] (-t type | -n number) [-i index] | -r id | -o offset", args)
	if _, err := lib.FetchSEL(ctx); err != nil {
		pFail("%v", err)
	}
	var (
		s   sel.Selection
		err error
	)
	switch {
	case ff.sensorType != "":
		s, err = lib.SelectSELRecordBySensorType(ff.sensorType, index)
	case ff.sensorNumber != "":
		s, err = lib.SelectSELRecordBySensorNumber(ff.sensorNumber, index)
	case recordID != "":
		s, err = lib.SelectSELRecordByRecordID(recordID)
	case offset != "":
		s, err = lib.SelectSELRecordAtOffset(offset)
	default:
		pFail("one of -t, -n, -r or -o is required")
	}
	if err != nil {
		pFail("%v", err)
	}
	printRecord(s.Record, false)
	if data != "" {
		if err = lib.SelectedSELRecordsEventDataShouldBeEqual(data, mask); err != nil {
			pFail("%v", err)
		}
	}
}

func cmdWait(ctx context.Context, lib *library.Library, args []string) {
	var ff filterFlags
	var count, timeout, interval string
	fs := flag.NewFlagSet("wait", flag.ExitOnError)
	ff.register(fs)
	fs.StringVar(&count, "count", "1", "number of matching records to wait for")
	fs.StringVar(&timeout, "timeout", "", "wait timeout, e.g. \"1 minute 20 seconds\"")
	fs.StringVar(&interval, "interval", "", "poll interval")
	parseFlags(fs, "wait [-h] (-t type | -n number) [-count N] [-timeout T] [-interval I]", args)
	if timeout != "" {
		if _, err := lib.SetTimeout(timeout); err != nil {
			pFail("%v", err)
		}
	}
	if interval != "" {
		if _, err := lib.SetPollInterval(interval); err != nil {
			pFail("%v", err)
		}
	}
	var (
		s   sel.Selection
		err error
	)
	switch {
	case ff.sensorType != "":
		s, err = lib.WaitUntilSELContainsXTimesSensorType(ctx, count, ff.sensorType)
	case ff.sensorNumber != "":
		s, err = lib.WaitUntilSELContainsXTimesSensorNumber(ctx, count, ff.sensorNumber)
	default:
		pFail("one of -t or -n is required")
	}
	if err != nil {
		pFail("%v", err)
	}
	printRecord(s.Record, false)
}

func cmdArchive(ctx context.Context, lib *library.Library, args []string) {
	var out string
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	fs.StringVar(&out, "o", "sel.zst", "archive file to write")
	parseFlags(fs, "archive [-h] [-o file]", args)
	if _, err := lib.FetchSEL(ctx); err != nil {
		pFail("%v", err)
	}
	c, _ := lib.Active()
	snap, err := c.Store.Current()
	if err != nil {
		pFail("%v", err)
	}
	if err = archive.WriteFile(out, snap); err != nil {
		pFail("%v", err)
	}
	logger.Infof("wrote %d SEL records to %s", snap.Len(), out)
}

func cmdSensors(ctx context.Context, lib *library.Library, args []string) {
	var state string
	fs := flag.NewFlagSet("sensors", flag.ExitOnError)
	fs.StringVar(&state, "wait", "", "wait until the sensor named by -s reaches this state")
	var name string
	fs.StringVar(&name, "s", "", "sensor name")
	parseFlags(fs, "sensors [-h] [-s name [-wait state]]", args)
	if state != "" {
		if name == "" {
			pFail("-wait requires -s")
		}
		if err := lib.WaitUntilSensorStateIs(ctx, name, state); err != nil {
			pFail("%v", err)
		}
	}
	sensors, err := lib.Sensors(ctx)
	if err != nil {
		pFail("%v", err)
	}
	for _, s := range sensors {
		if name != "" && s.Name != name {
			continue
		}
		reading := "na"
		if s.Reading != nil {
			reading = fmt.Sprintf("%g", *s.Reading)
		}
		st := s.Status
		if s.StateBits != nil {
			st = fmt.Sprintf("0x%04x", *s.StateBits)
		}
		fmt.Printf("%-16s | %-10s | %-10s | %s\n", s.Name, reading, s.Unit, st)
	}
}

func cmdServe(ctx context.Context, cfg *config.Config, lib *library.Library, args []string) {
	var listen string
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.StringVar(&listen, "l", cfg.Listen, "address to listen on")
	parseFlags(fs, "serve [-h] [-l addr]", args)
	api := restapi.New(lib, listen, logger)
	api.Ready = func() {
		if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
			pError("failed to notify systemd: %v", err)
		} else if ok {
			logger.Debug("notified systemd")
		}
	}
	if err := api.ListenAndServe(ctx); err != nil {
		pFail("%v", err)
	}
}

// Entry point

func main() {
	var help = false
	fs := flag.NewFlagSet("ipmisel", flag.ContinueOnError)
	commands := []string{"dump", "count", "select", "wait", "archive", "sensors", "serve"}
	usage := func() {
		fmt.Println("Usage: ipmisel [-c file] [-a alias] [-archive file] [-dhqv] [-robot] <command> [options]")
		fmt.Println("Commands:")
		fmt.Println("\t" + strings.Join(commands, "\n\t"))
		fmt.Println("For command help: ipmisel <command> -h")
		fs.PrintDefaults()
	}
	fs.StringVar(&cfgFile, "c", defaultConfig, "configuration file")
	fs.StringVar(&alias, "a", "", "index or alias of the connection to use")
	fs.StringVar(&archiveFile, "archive", "", "read the SEL from an archive file instead of a controller")
	fs.BoolVar(&verbose, "v", false, "verbose output")
	fs.BoolVar(&debug, "d", false, "debug output, including record dumps")
	fs.BoolVar(&quiet, "q", false, "suppress informational messages")
	fs.BoolVar(&robot, "robot", false, "log in keyword runner format")
	fs.BoolVar(&help, "h", false, "print usage and exit")
	if err := fs.Parse(os.Args[1:]); err != nil {
		pError("failed to parse arguments: %v", err)
		os.Exit(1)
	}
	if help {
		usage()
		os.Exit(0)
	}
	args := fs.Args()
	if len(args) < 1 {
		pError("no command specified")
		usage()
		os.Exit(1)
	}
	cmd := args[0]
	args = args[1:]

	cfg := readConfig()
	setupLogger(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lib := openLibrary(cfg)
	switch cmd {
	case "dump":
		cmdDump(ctx, lib, args)
	case "count":
		cmdCount(ctx, lib, args)
	case "select":
		cmdSelect(ctx, lib, args)
	case "wait":
		cmdWait(ctx, lib, args)
	case "archive":
		cmdArchive(ctx, lib, args)
	case "sensors":
		cmdSensors(ctx, lib, args)
	case "serve":
		cmdServe(ctx, cfg, lib, args)
	default:
		pError("unknown command: %s", cmd)
		usage()
		os.Exit(1)
	}
}
