package cmd

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/cobra"

	"github.com/fgp-bot/fgpbot/internal/supervisor"
	"github.com/fgp-bot/fgpbot/pkg/compress"
	"github.com/fgp-bot/fgpbot/pkg/filemanager"
	"github.com/fgp-bot/fgpbot/pkg/models"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that everything the bot needs is in place",
	Long: `Doctor checks the runtime environment, the bot's credentials, the media
directories and database, the external compression tools and the host's
free resources. It exits non-zero when a required check fails.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type check struct {
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	Required bool   `json:"required"`
	Detail   string `json:"detail"`
}

func runDoctor(cmd *cobra.Command, args []string) error {
	var checks []check
	add := func(name string, required bool, err error, detail string) {
		c := check{Name: name, OK: err == nil, Required: required, Detail: detail}
		if err != nil {
			c.Detail = err.Error()
		}
		checks = append(checks, c)
	}

	supCfg, err := settings.SupervisorConfig()
	add("supervisor config", true, err, "valid")
	if err == nil {
		env, err := supervisor.ResolveEnvironment(supCfg)
		if err == nil {
			err = env.Check()
		}
		add("runtime environment", true, err, env.Dir)
		if err == nil {
			bin, err := env.LookPath(supCfg.Entry[0])
			add("bot interpreter", true, err, bin)
		}
	}

	if settings.Bot.Token == "" {
		add("bot token", true, fmt.Errorf("DISCORD_BOT_TOKEN is not set"), "")
	} else {
		add("bot token", true, nil, "set")
	}
	add("media API", false, settings.MediaConfig().Validate(), "configured")

	for _, cd := range settings.CategoryDirs() {
		n, err := filemanager.CountFiles(cd.Dir, appLogger())
		add(cd.Category+" directory", false, err, fmt.Sprintf("%s, %d files", cd.Dir, n))
	}
	if st, err := openStore(); err != nil {
		add("database", true, err, "")
	} else {
		hashes, err := st.GetAllFileHashes()
		add("database", true, err, fmt.Sprintf("%s, %d files tracked", settings.Data.Database, len(hashes)))
	}

	for tool, found := range compress.New(appLogger()).Tools() {
		var err error
		if !found {
			err = fmt.Errorf("%s not found on PATH", tool)
		}
		add(tool, false, err, "found")
	}

	checks = append(checks, hostChecks()...)

	failed := 0
	for _, c := range checks {
		if c.Required && !c.OK {
			failed++
		}
	}

	if IsJSONOutput() {
		if err := printJSON(checks); err != nil {
			return err
		}
	} else {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Check", "Status", "Detail")
		for _, c := range checks {
			status := "ok"
			switch {
			case !c.OK && c.Required:
				status = "FAIL"
			case !c.OK:
				status = "warn"
			}
			table.Append(c.Name, status, c.Detail)
		}
		table.Render()
	}

	if failed > 0 {
		return &ExitError{Code: 1}
	}
	return nil
}

func hostChecks() []check {
	checks := []check{{
		Name:   "platform",
		OK:     true,
		Detail: fmt.Sprintf("%s/%s, %d CPUs", runtime.GOOS, runtime.GOARCH, runtime.NumCPU()),
	}}

	if pct, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(pct) > 0 {
		checks = append(checks, check{Name: "cpu load", OK: pct[0] < 90, Detail: fmt.Sprintf("%.1f%%", pct[0])})
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		checks = append(checks, check{
			Name:   "memory",
			OK:     vm.UsedPercent < 90,
			Detail: fmt.Sprintf("%s available of %s", models.HumanReadableSize(int64(vm.Available)), models.HumanReadableSize(int64(vm.Total))),
		})
	}
	if du, err := disk.Usage(settings.Data.Dir); err == nil {
		checks = append(checks, check{
			Name:   "disk",
			OK:     du.UsedPercent < 90,
			Detail: fmt.Sprintf("%s free, %.1f%% used", models.HumanReadableSize(int64(du.Free)), du.UsedPercent),
		})
	}
	return checks
}
