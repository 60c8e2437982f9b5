package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"snap-memories-downloader/internal/ffmpeg"
	"snap-memories-downloader/internal/ledger"
)

type doctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type doctorReport struct {
	OK     bool          `json:"ok"`
	Checks []doctorCheck `json:"checks"`
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	output := fs.String("output", "memories", "output directory to check")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	res := doctor(*output)
	if *jsonOut {
		return printJSON(res)
	}

	for _, c := range res.Checks {
		status := "ok"
		if !c.OK {
			status = "fail"
		}
		fmt.Printf("%s: %s (%s)\n", c.Name, status, c.Message)
	}
	if !res.OK {
		return errors.New("doctor checks failed")
	}
	fmt.Println("doctor: all checks passed")
	return nil
}

func doctor(outputDir string) doctorReport {
	dep := ffmpeg.DependencyStatus()
	checks := []doctorCheck{
		{
			Name:    "dependency:ffmpeg",
			OK:      dep.FFmpegFound,
			Message: dependencyMessage(dep.FFmpegFound, dep.FFmpegPath, "ffmpeg"),
		},
		{
			Name:    "dependency:exiftool",
			OK:      dep.ExiftoolFound,
			Message: dependencyMessage(dep.ExiftoolFound, dep.ExiftoolPath, "exiftool"),
		},
	}

	outOK, outMessage := ensureWritableDir(outputDir)
	checks = append(checks, doctorCheck{Name: "directory:output", OK: outOK, Message: outMessage})

	ledgerCheck := doctorCheck{Name: "ledger:readable", OK: true, Message: "no ledger yet"}
	if _, err := os.Stat(ledger.Path(outputDir)); err == nil {
		if led, err := ledger.Load(ledger.Path(outputDir)); err != nil {
			ledgerCheck.OK = false
			ledgerCheck.Message = err.Error()
		} else {
			counts := led.Counts()
			ledgerCheck.Message = fmt.Sprintf("%d records (%d done, %d pending, %d failed)",
				counts.Total, counts.Success, counts.Pending, counts.Failed)
		}
	}
	checks = append(checks, ledgerCheck)

	ok := true
	for _, c := range checks {
		if !c.OK {
			ok = false
			break
		}
	}
	return doctorReport{OK: ok, Checks: checks}
}

func dependencyMessage(ok bool, path, name string) string {
	if ok {
		return name + " found at " + path
	}
	return name + " not found on PATH"
}

func ensureWritableDir(path string) (bool, string) {
	if strings.TrimSpace(path) == "" {
		return false, "empty path"
	}
	if err := ledger.Mkdir(path); err != nil {
		return false, err.Error()
	}
	f, err := os.CreateTemp(path, "snap-memories-check-*.tmp")
	if err != nil {
		return false, err.Error()
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return true, "writable"
}
