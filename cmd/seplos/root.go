package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tetragramaton/seplos-go/internal/config"
	"github.com/tetragramaton/seplos-go/internal/logging"
	"github.com/tetragramaton/seplos-go/internal/poller"
	"github.com/tetragramaton/seplos-go/internal/register"
	"github.com/tetragramaton/seplos-go/internal/store"
	"github.com/tetragramaton/seplos-go/internal/write"
)

type options struct {
	cfgFile    string
	verbose    bool
	jsonOutput bool
	simulate   bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "seplos",
		Short: "Monitor and configure a Seplos BMSv3 battery",
		Long: `Show and edit information about a Seplos BMSv3 over RS485 Modbus, and mirror it to MQTT.

Read-only values (state of charge, pack voltage, cells) are what is published.
Parameters are the editable protection settings. Listing and showing is safe;
edit writes to the BMS and can set dangerous values.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, gitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file (default: ./seplos.yaml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVar(&opts.simulate, "simulate", false, "talk to a simulated BMS instead of the serial port")

	root.AddCommand(
		newRunCmd(opts),
		newListCmd(opts),
		newParamsCmd(opts),
		newShowCmd(opts),
		newAllCmd(opts),
		newEditCmd(opts),
		newConsoleCmd(opts),
	)
	return root
}

func (o *options) load() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if o.simulate {
		cfg.Serial.Driver = config.DriverSim
	}
	if o.verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, logging.New(cfg.Log), nil
}

// app wires the service and starts its bus scheduler on ctx.
func (o *options) app(ctx context.Context) (*App, func(), error) {
	cfg, log, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	a, cleanup, err := InitApp(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	a.Service.Start(ctx)
	return a, cleanup, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the read-only values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			regs, err := register.Seplos()
			if err != nil {
				return err
			}
			names := regs.Names(register.ReadOnly)
			for _, d := range poller.DerivedValues {
				names = append(names, d.Name)
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), names)
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, "\n"))
			return nil
		},
	}
}

type paramInfo struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Unit    string  `json:"unit,omitempty"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

func newParamsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "params",
		Short: "List the writable parameters with their ranges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			regs, err := register.Seplos()
			if err != nil {
				return err
			}
			var out []paramInfo
			for _, d := range regs.Descriptors() {
				if !d.Writable() {
					continue
				}
				out = append(out, paramInfo{
					Name:    d.Name,
					Address: fmt.Sprintf("0x%04X", d.Address),
					Unit:    d.Unit,
					Min:     d.Range.Min,
					Max:     d.Range.Max,
				})
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), out)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, p := range out {
				fmt.Fprintf(tw, "%s\t%s\t%g..%g %s\n", p.Name, p.Address, p.Min, p.Max, p.Unit)
			}
			return tw.Flush()
		},
	}
}

// known accepts register names and derived value names.
func known(regs *register.Map, name string) error {
	if _, err := regs.Lookup(name); err == nil {
		return nil
	}
	for _, d := range poller.DerivedValues {
		if d.Name == name {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", register.ErrUnknownParameter, name)
}

func formatValue(v store.Value) string {
	s := strconv.FormatFloat(v.Physical, 'f', -1, 64)
	if v.Unit != "" {
		s += " " + v.Unit
	}
	return s
}

func newShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Read and print the current value of one value or parameter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			a, cleanup, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			if err := known(a.Service.Map(), name); err != nil {
				return err
			}

			ev := a.Service.Refresh(cmd.Context())
			v, ok := ev.Snapshot[name]
			if !ok || v.Stale {
				if ev.Err != nil {
					return fmt.Errorf("read %s: %w", name, ev.Err)
				}
				return fmt.Errorf("read %s: no value", name)
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), v)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", name, formatValue(v))
			return nil
		},
	}
}

func newAllCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Read and print every value and parameter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cleanup, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			ev := a.Service.Refresh(cmd.Context())
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), ev.Snapshot)
			}

			names := make([]string, 0, len(ev.Snapshot))
			for _, d := range a.Service.Map().Descriptors() {
				names = append(names, d.Name)
			}
			for _, d := range poller.DerivedValues {
				names = append(names, d.Name)
			}
			for _, name := range names {
				v, ok := ev.Snapshot[name]
				switch {
				case !ok:
				case v.Stale:
					fmt.Fprintf(cmd.OutOrStdout(), "%s -- (stale)\n", name)
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", name, formatValue(v))
				}
			}
			if ev.Err != nil {
				return fmt.Errorf("some values could not be read: %w", ev.Err)
			}
			return nil
		},
	}
}

type resultJSON struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Outcome   string   `json:"outcome"`
	Requested float64  `json:"requested"`
	ReadBack  *float64 `json:"read_back,omitempty"`
	Forced    bool     `json:"forced"`
	Sent      bool     `json:"sent"`
	Retries   int      `json:"retries"`
	Error     string   `json:"error,omitempty"`
	Message   string   `json:"message"`
}

func toJSON(r write.Result) resultJSON {
	out := resultJSON{
		ID:        r.ID,
		Name:      r.Name,
		Outcome:   r.Outcome.String(),
		Requested: r.Requested,
		Forced:    r.Forced,
		Sent:      r.Sent,
		Retries:   r.Retries,
		Message:   r.String(),
	}
	if r.Outcome == write.Confirmed || r.Outcome == write.Mismatch {
		rb := r.ReadBack
		out.ReadBack = &rb
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return out
}

func newEditCmd(opts *options) *cobra.Command {
	var force, yes bool
	cmd := &cobra.Command{
		Use:   "edit <parameter> <value>",
		Short: "Write a parameter and confirm it by reading it back",
		Long: `Write a parameter and confirm it by reading it back.

Values outside the parameter range are refused before the device is read. Otherwise the
current value is read first and the change must be confirmed by typing 'yes'. Changes of more than 20 % or through zero are refused unless --force is given.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			value, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[1], err)
			}

			a, cleanup, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			d, err := a.Service.Lookup(name)
			if err != nil {
				return err
			}
			var wopts []write.Option
			if force {
				wopts = append(wopts, write.Force())
			}

			out := cmd.OutOrStdout()
			prompt := out
			if opts.jsonOutput {
				prompt = cmd.ErrOrStderr()
			}

			// Invalid values go straight to RequestWrite, which rejects them without bus traffic.
			valid := false
			if _, err := d.Encode(value); err == nil {
				ev := a.Service.Refresh(cmd.Context())
				if err := a.Service.Check(name, value, wopts...); err == nil {
					valid = true
					current := "unknown"
					if v, ok := ev.Snapshot[name]; ok && !v.Stale {
						current = formatValue(v)
					}
					fmt.Fprintf(prompt, "\nWe will change %s from %s to %s %s\n\n", name, current, strconv.FormatFloat(value, 'f', -1, 64), d.Unit)
				}
			}

			if valid && !yes {
				fmt.Fprint(prompt, "If this looks right and you wish to go ahead then type 'yes'. All other values abort: ")
				line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if strings.TrimSpace(line) != "yes" {
					fmt.Fprintln(prompt, "Aborting edit")
					return nil
				}
			}

			res := a.Service.RequestWrite(cmd.Context(), name, value, wopts...)
			if opts.jsonOutput {
				if err := printJSON(out, toJSON(res)); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, res.String())
			}
			if !res.OK() {
				if res.Err != nil {
					return fmt.Errorf("write %s %s: %w", name, res.Outcome, res.Err)
				}
				return fmt.Errorf("write %s: %s", name, res.Outcome)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "bypass the change guard (range checks still apply)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
