// robots is a command-line client for a robot backend.
//
// Usage:
//
//	robots list                          List every robot
//	robots get <id>                      Show one robot
//	robots find <name>                   Show the first robot with this name
//	robots create --name N --price P     Create a robot
//	robots update <id> [--price P ...]   Change some fields of a robot
//	robots delete <id>                   Delete a robot
//	robots test [path]                   Run scenarios against the backend
//	robots admin <action>                Reset, seed, or fault the backend
//	robots config [save]                 Show or save the effective config
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/retreat896/MobileDev-Assignment02/internal/client"
	"github.com/retreat896/MobileDev-Assignment02/internal/config"
	"github.com/retreat896/MobileDev-Assignment02/internal/imagehost"
	"github.com/retreat896/MobileDev-Assignment02/internal/scenario"
	"github.com/retreat896/MobileDev-Assignment02/pkg/robots"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

const defaultScenarioDir = "./scenarios/"

// newUploader connects to the image host. Tests replace it.
var newUploader = func(cloudURL string) (imagehost.Uploader, error) {
	c, err := imagehost.NewCloudinary(cloudURL)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// usageError is a malformed command line. It exits with status 2.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

var (
	errHelp            = errors.New("help requested")
	errScenariosFailed = errors.New("scenarios failed")
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// globalOpts are the flags accepted anywhere on the command line.
type globalOpts struct {
	configPath string
	baseURL    string
	verbose    bool
}

// parseArgs extracts the subcommand, its arguments, and the global options.
func parseArgs(raw []string) (command string, args []string, opts globalOpts, err error) {
	var filtered []string
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case "--config", "--base-url":
			if i+1 >= len(raw) {
				return "", nil, opts, usageError{raw[i] + " needs a value"}
			}
			if raw[i] == "--config" {
				opts.configPath = raw[i+1]
			} else {
				opts.baseURL = raw[i+1]
			}
			i++
			continue
		case "--verbose":
			opts.verbose = true
			continue
		}
		filtered = append(filtered, raw[i])
	}

	if len(filtered) == 0 {
		return "", nil, opts, nil
	}
	return filtered[0], filtered[1:], opts, nil
}

func run(argv []string, stdout, stderr io.Writer) int {
	cmd, args, opts, err := parseArgs(argv)
	if err != nil {
		fmt.Fprintf(stderr, "robots: %v\n", err)
		return 2
	}

	switch cmd {
	case "", "help", "--help", "-h":
		if cmd == "" {
			printUsage(stderr)
			return 2
		}
		printUsage(stdout)
		return 0
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "robots version %s\n", version)
		return 0
	}

	a, err := newApp(opts, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "robots: %v\n", err)
		return 1
	}

	switch cmd {
	case "list":
		err = a.cmdList(args)
	case "get":
		err = a.cmdGet(args)
	case "find":
		err = a.cmdFind(args)
	case "create":
		err = a.cmdCreate(args)
	case "update":
		err = a.cmdUpdate(args)
	case "delete":
		err = a.cmdDelete(args)
	case "test":
		err = a.cmdTest(args)
	case "admin":
		err = a.cmdAdmin(args)
	case "config":
		err = a.cmdConfig(args)
	default:
		fmt.Fprintf(stderr, "robots: unknown command %q\n\n", cmd)
		printUsage(stderr)
		return 2
	}

	var uerr usageError
	switch {
	case err == nil, errors.Is(err, errHelp):
		return 0
	case errors.Is(err, errScenariosFailed):
		return 1
	case errors.As(err, &uerr):
		fmt.Fprintf(stderr, "robots %s: %v\n", cmd, err)
		fmt.Fprintln(stderr, "Run 'robots help' for usage.")
		return 2
	default:
		fmt.Fprintf(stderr, "robots: %s\n", a.describe(err))
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `robots - robot backend client %s

Usage:
  robots [--config <path>] [--base-url <url>] [--verbose] <command> [arguments]

Commands:
  list                                   List every robot
  get <id>                               Show one robot as JSON
  find <name>                            Show the first robot with this name
  create --name N --price P [options]    Create a robot
         [--description D] [--image-url U | --image-file F]
  update <id> [options]                  Change only the given fields
         [--name N] [--price P] [--description D] [--image-url U | --image-file F]
  delete <id>                            Delete a robot
  test [path]                            Run scenarios (default: ./scenarios/)
  admin health                           Check the backend's health
  admin reset                            Reset the backend to its seed state
  admin seed <file>                      Replace every robot with a state file
  admin fault <path> <status> [options]  Inject a fault (--delay-ms, --rate, --body)
  admin unfault <path>                   Remove an injected fault
  config [save]                          Show (or save) the effective config
  version                                Print the robots version

Options:
  --config <path>     Config file (default: ~/.robots/config.json or config.yaml)
  --base-url <url>    Backend base URL, overriding the config file
  --verbose           Log requests to stderr

Environment:
  ROBOTS_BASE_URL     Override base_url
  ROBOTS_TIMEOUT      Override timeout (e.g. 5s)
  CLOUDINARY_URL      Image host credentials for --image-file
`, version)
}

// app holds what every command needs.
type app struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	client     *robots.Client
	admin      *client.AdminClient
	stdout     io.Writer
	stderr     io.Writer
}

func newApp(opts globalOpts, stdout, stderr io.Writer) (*app, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.baseURL != "" {
		cfg.BaseURL = opts.baseURL
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if opts.verbose {
		cfg.Verbose = true
	}

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	c, err := robots.New(cfg.BaseURL,
		robots.WithLogger(logger),
		robots.WithUserAgent("robots-cli/"+version),
	)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:        cfg,
		configPath: opts.configPath,
		logger:     logger,
		client:     c,
		admin:      client.New(c.BaseURL()),
		stdout:     stdout,
		stderr:     stderr,
	}, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFrom(path, strings.EqualFold(filepath.Ext(path), ".json"))
}

// context bounds a single command by the configured timeout.
func (a *app) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(a.cfg.Timeout))
}

// describe turns a client error into a one-line message for the user.
func (a *app) describe(err error) string {
	switch scenario.Classify(err) {
	case scenario.KindNotFound:
		return "robot not found"
	case scenario.KindNetwork:
		var nerr *robots.NetworkUnavailableError
		errors.As(err, &nerr)
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Sprintf("backend at %s did not answer within %s", a.cfg.BaseURL, a.cfg.Timeout)
		}
		return fmt.Sprintf("backend unreachable at %s: %v", a.cfg.BaseURL, nerr.Cause)
	case scenario.KindRequestFailed:
		var rerr *robots.RequestFailedError
		errors.As(err, &rerr)
		if rerr.Body == "" {
			return fmt.Sprintf("backend rejected the request (status %d)", rerr.Status)
		}
		return fmt.Sprintf("backend rejected the request (status %d): %s", rerr.Status, rerr.Body)
	case scenario.KindDecode:
		var derr *robots.DecodeError
		errors.As(err, &derr)
		return fmt.Sprintf("unexpected response from backend: %v", derr.Cause)
	default:
		return err.Error()
	}
}

func newFlagSet(name string, w io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("robots "+name, flag.ContinueOnError)
	fs.SetOutput(w)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errHelp
		}
		return usageError{err.Error()}
	}
	if fs.NArg() > 0 {
		return usageError{fmt.Sprintf("unexpected argument %q", fs.Arg(0))}
	}
	return nil
}

func (a *app) printRobot(r robots.Robot) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.stdout, "%s\n", data)
	return err
}

// ---------------------------------------------------------------------------
// robots list / get / find / delete
// ---------------------------------------------------------------------------

func (a *app) cmdList(args []string) error {
	if len(args) > 0 {
		return usageError{"list takes no arguments"}
	}
	ctx, cancel := a.context()
	defer cancel()

	list, err := a.client.ListRobots(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.stdout, "No robots.")
		return nil
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tIMAGE")
	for _, r := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Name, formatPrice(r.Price), r.ImageURL)
	}
	return tw.Flush()
}

func formatPrice(p float64) string {
	return "$" + strconv.FormatFloat(p, 'f', 2, 64)
}

func (a *app) cmdGet(args []string) error {
	if len(args) != 1 {
		return usageError{"usage: robots get <id>"}
	}
	ctx, cancel := a.context()
	defer cancel()

	r, err := a.client.GetRobot(ctx, robots.ID(args[0]))
	if err != nil {
		return err
	}
	return a.printRobot(r)
}

func (a *app) cmdFind(args []string) error {
	if len(args) == 0 {
		return usageError{"usage: robots find <name>"}
	}
	ctx, cancel := a.context()
	defer cancel()

	r, err := a.client.FindRobotByName(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	return a.printRobot(r)
}

func (a *app) cmdDelete(args []string) error {
	if len(args) != 1 {
		return usageError{"usage: robots delete <id>"}
	}
	ctx, cancel := a.context()
	defer cancel()

	if err := a.client.DeleteRobot(ctx, robots.ID(args[0])); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Deleted robot %s\n", args[0])
	return nil
}

// ---------------------------------------------------------------------------
// robots create / update
// ---------------------------------------------------------------------------

// robotFlags are the field flags shared by create and update.
type robotFlags struct {
	name, description, price, imageURL, imageFile string
	set                                           map[string]bool
}

func bindRobotFlags(fs *flag.FlagSet) *robotFlags {
	f := &robotFlags{}
	fs.StringVar(&f.name, "name", "", "Robot name")
	fs.StringVar(&f.description, "description", "", "Free-form description")
	fs.StringVar(&f.price, "price", "", "Price, e.g. 19.99")
	fs.StringVar(&f.imageURL, "image-url", "", "Image URL")
	fs.StringVar(&f.imageFile, "image-file", "", "Local image to upload as the robot's image")
	return f
}

func (f *robotFlags) parse(fs *flag.FlagSet, args []string) error {
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	f.set = make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	if f.set["image-url"] && f.set["image-file"] {
		return usageError{"use either --image-url or --image-file, not both"}
	}
	return nil
}

func (a *app) cmdCreate(args []string) error {
	fs := newFlagSet("create", a.stderr)
	f := bindRobotFlags(fs)
	if err := f.parse(fs, args); err != nil {
		return err
	}

	price, err := robots.ParsePrice(f.price)
	if err != nil {
		// Report fields in draft order: name before price.
		if nerr := (robots.Patch{Name: &f.name}).Validate(); nerr != nil {
			return nerr
		}
		return err
	}
	draft := robots.Draft{Name: f.name, Description: f.description, Price: price, ImageURL: f.imageURL}

	ctx, cancel := a.context()
	defer cancel()

	if f.imageFile == "" {
		r, err := a.client.CreateRobot(ctx, draft)
		if err != nil {
			return err
		}
		return a.printRobot(r)
	}

	// Check everything but the image before uploading anything.
	pre := robots.Patch{Name: &draft.Name, Description: &draft.Description, Price: &draft.Price}
	if err := pre.Validate(); err != nil {
		return err
	}
	up, img, err := a.upload(ctx, f.imageFile)
	if err != nil {
		return err
	}
	draft.ImageURL = img.URL
	r, err := a.client.CreateRobot(ctx, draft)
	if err != nil {
		a.discard(up, img)
		return err
	}
	return a.printRobot(r)
}

func (a *app) cmdUpdate(args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return usageError{"usage: robots update <id> [--name N] [--price P] [--description D] [--image-url U | --image-file F]"}
	}
	id := robots.ID(args[0])

	fs := newFlagSet("update", a.stderr)
	f := bindRobotFlags(fs)
	if err := f.parse(fs, args[1:]); err != nil {
		return err
	}

	var patch robots.Patch
	if f.set["name"] {
		patch.Name = &f.name
	}
	if f.set["description"] {
		patch.Description = &f.description
	}
	if f.set["image-url"] {
		patch.ImageURL = &f.imageURL
	}
	if f.set["price"] {
		price, err := robots.ParsePrice(f.price)
		if err != nil {
			return err
		}
		patch.Price = &price
	}
	if patch.IsEmpty() && f.imageFile == "" {
		return usageError{"nothing to update: give at least one field flag"}
	}
	if err := patch.Validate(); err != nil {
		return err
	}

	ctx, cancel := a.context()
	defer cancel()

	if f.imageFile == "" {
		r, err := a.client.UpdateRobot(ctx, id, patch)
		if err != nil {
			return err
		}
		return a.printRobot(r)
	}

	up, img, err := a.upload(ctx, f.imageFile)
	if err != nil {
		return err
	}
	patch.ImageURL = &img.URL
	r, err := a.client.UpdateRobot(ctx, id, patch)
	if err != nil {
		a.discard(up, img)
		return err
	}
	return a.printRobot(r)
}

func (a *app) upload(ctx context.Context, path string) (imagehost.Uploader, imagehost.Image, error) {
	up, err := newUploader(a.cfg.CloudinaryURL)
	if err != nil {
		return nil, imagehost.Image{}, err
	}
	img, err := up.Upload(ctx, path)
	if err != nil {
		return nil, imagehost.Image{}, fmt.Errorf("uploading %s: %w", path, err)
	}
	a.logger.Debug("uploaded image", "url", img.URL, "public_id", img.PublicID)
	return up, img, nil
}

// discard removes an uploaded image whose robot was never saved.
func (a *app) discard(up imagehost.Uploader, img imagehost.Image) {
	ctx, cancel := a.context()
	defer cancel()
	if err := up.Delete(ctx, img.PublicID); err != nil {
		a.logger.Warn("could not remove orphaned image", "public_id", img.PublicID, "error", err)
	}
}

// ---------------------------------------------------------------------------
// robots test
// ---------------------------------------------------------------------------

func (a *app) cmdTest(args []string) error {
	if len(args) > 1 {
		return usageError{"usage: robots test [path]"}
	}
	path := defaultScenarioDir
	if len(args) == 1 {
		path = args[0]
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("scenario path %s: %w", path, err)
	}
	var scenarios []*scenario.Scenario
	if info.IsDir() {
		scenarios, err = scenario.LoadDir(path)
	} else {
		var s *scenario.Scenario
		s, err = scenario.LoadScenario(path)
		scenarios = append(scenarios, s)
	}
	if err != nil {
		return err
	}
	if len(scenarios) == 0 {
		fmt.Fprintf(a.stdout, "No scenarios found in %s\n", path)
		return nil
	}

	runner := scenario.NewRunner(a.client, a.admin)
	runner.StepTimeout = time.Duration(a.cfg.Timeout)

	totalPassed, totalFailed := 0, 0
	for _, s := range scenarios {
		result, runErr := runner.Run(context.Background(), s)
		p, f := a.printScenarioResult(s, result, runErr)
		totalPassed += p
		totalFailed += f
	}

	fmt.Fprintln(a.stdout)
	fmt.Fprintf(a.stdout, "Results: %d passed, %d failed, %d total\n", totalPassed, totalFailed, totalPassed+totalFailed)
	if totalFailed > 0 {
		return errScenariosFailed
	}
	return nil
}

func (a *app) printScenarioResult(s *scenario.Scenario, result *scenario.Result, err error) (passed, failed int) {
	fmt.Fprintf(a.stdout, "\n--- %s ---\n", s.Name)
	if s.Description != "" {
		fmt.Fprintf(a.stdout, "    %s\n", s.Description)
	}
	fmt.Fprintln(a.stdout)

	if err != nil {
		fmt.Fprintf(a.stdout, "  ERROR: %v\n", err)
		return 0, 1
	}

	for _, sr := range result.Steps {
		if sr.Passed {
			fmt.Fprintf(a.stdout, "  PASS  %-50s (%s)\n", sr.Name, sr.Duration.Round(time.Millisecond))
			passed++
		} else {
			fmt.Fprintf(a.stdout, "  FAIL  %-50s (%s)\n", sr.Name, sr.Duration.Round(time.Millisecond))
			fmt.Fprintf(a.stdout, "        %s\n", sr.Error)
			failed++
		}
	}

	label := "PASSED"
	if !result.Passed {
		label = "FAILED"
	}
	fmt.Fprintf(a.stdout, "\n  Scenario: %s (%s)\n", label, result.Duration.Round(time.Millisecond))
	return passed, failed
}

// ---------------------------------------------------------------------------
// robots admin
// ---------------------------------------------------------------------------

func (a *app) cmdAdmin(args []string) error {
	if len(args) == 0 {
		return usageError{"usage: robots admin <health|reset|seed|fault|unfault>"}
	}
	ctx, cancel := a.context()
	defer cancel()

	switch args[0] {
	case "health":
		ok, body := a.admin.Health(ctx)
		if !ok {
			return fmt.Errorf("backend at %s is unhealthy: %s", a.cfg.BaseURL, body)
		}
		fmt.Fprintf(a.stdout, "OK  %s\n", body)
		return nil
	case "reset":
		if _, err := a.admin.Reset(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, "Backend reset.")
		return nil
	case "seed":
		if len(args) != 2 {
			return usageError{"usage: robots admin seed <file>"}
		}
		if _, err := a.admin.Seed(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "Seeded from %s\n", args[1])
		return nil
	case "fault":
		return a.cmdFault(ctx, args[1:])
	case "unfault":
		if len(args) != 2 {
			return usageError{"usage: robots admin unfault <path>"}
		}
		if _, err := a.admin.RemoveFault(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "Fault removed from %s\n", args[1])
		return nil
	default:
		return usageError{fmt.Sprintf("unknown admin action %q", args[0])}
	}
}

func (a *app) cmdFault(ctx context.Context, args []string) error {
	const usage = "usage: robots admin fault <path> <status> [--delay-ms N] [--rate R] [--body B]"
	if len(args) < 2 {
		return usageError{usage}
	}
	status, err := strconv.Atoi(args[1])
	if err != nil || status < 100 || status > 599 {
		return usageError{fmt.Sprintf("invalid status %q", args[1])}
	}

	var fault client.Fault
	fault.StatusCode = status
	fs := newFlagSet("admin fault", a.stderr)
	fs.IntVar(&fault.DelayMS, "delay-ms", 0, "Delay before answering, in milliseconds")
	fs.Float64Var(&fault.Rate, "rate", 0, "Fraction of requests to fault (default: all)")
	fs.StringVar(&fault.Body, "body", "", "Response body (default: a JSON detail)")
	if err := parseFlags(fs, args[2:]); err != nil {
		return err
	}

	if _, err := a.admin.InjectFault(ctx, args[0], fault); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Fault injected on %s (status %d)\n", args[0], status)
	return nil
}

// ---------------------------------------------------------------------------
// robots config
// ---------------------------------------------------------------------------

func (a *app) cmdConfig(args []string) error {
	switch {
	case len(args) == 0:
		data, err := json.MarshalIndent(a.cfg.Redacted(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "%s\n", data)
		return nil
	case len(args) == 1 && args[0] == "save":
		path := a.configPath
		if path == "" {
			var err error
			if path, _, err = config.Path(); err != nil {
				return err
			}
		}
		if filepath.Ext(path) != ".json" {
			path = strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
		}
		if err := config.SaveTo(path, a.cfg); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "Saved config to %s\n", path)
		return nil
	default:
		return usageError{"usage: robots config [save]"}
	}
}
