package output

import (
	"os"
	"testing"

	"github.com/fatih/color"
)

func TestMain(m *testing.M) {
	// Keep text assertions independent of the terminal.
	color.NoColor = true
	os.Exit(m.Run())
}

func sampleResults() []Result {
	return []Result{
		{Target: "eclipse-zenoh/zenoh-c", Status: StatusOK, Operation: "created", Changed: true, PullRequest: 12, URL: "https://github.com/eclipse-zenoh/zenoh-c/pull/12", AutoMerge: true},
		{Target: "eclipse-zenoh/zenoh-python", Status: StatusOK, Operation: "none"},
		{Target: "eclipse-zenoh/zenoh-java", Status: StatusError, Operation: "none", Step: "check", Message: "cargo check failed | exit 101"},
	}
}
