package support

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/MeKo-Tech/spotit/internal/bridge"
	"github.com/MeKo-Tech/spotit/internal/registry"
	"github.com/MeKo-Tech/spotit/internal/testutil"
	"github.com/cucumber/godog"
)

// RegisterLifecycleSteps registers detector creation and release steps.
func (tc *TestContext) RegisterLifecycleSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the labels "([^"]*)"$`, tc.theLabels)
	sc.Step(`^a model that reports:$`, tc.aModelThatReports)
	sc.Step(`^a model that reports nothing$`, tc.aModelThatReportsNothing)
	sc.Step(`^the busy policy is "([^"]*)"$`, tc.theBusyPolicyIs)
	sc.Step(`^a loaded detector$`, tc.aLoadedDetector)
	sc.Step(`^I initialize a detector$`, tc.iInitializeADetector)
	sc.Step(`^I initialize a detector from "([^"]*)"$`, tc.iInitializeADetectorFrom)
	sc.Step(`^I free the detector$`, tc.iFreeTheDetector)
	sc.Step(`^I free handle (\d+)$`, tc.iFreeHandle)
	sc.Step(`^(\d+) callers each create and free (\d+) detectors$`, tc.callersCreateAndFree)
	sc.Step(`^the handle is valid$`, tc.theHandleIsValid)
	sc.Step(`^the handle is zero$`, tc.theHandleIsZero)
	sc.Step(`^(\d+) detectors? (?:is|are) loaded$`, tc.detectorsAreLoaded)
}

// RegisterDetectionSteps registers steps that run detection.
func (tc *TestContext) RegisterDetectionSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I detect symbols on a (\d+)x(\d+) image with (\d+) channels?$`, tc.iDetectSymbolsOnImage)
	sc.Step(`^I detect symbols with a (\d+) byte buffer on a (\d+)x(\d+) image with (\d+) channels?$`, tc.iDetectSymbolsWithBuffer)
	sc.Step(`^the call succeeds$`, tc.theCallSucceeds)
	sc.Step(`^the call fails$`, tc.theCallFails)
	sc.Step(`^the result is "([^"]*)"$`, tc.theResultIs)
	sc.Step(`^the result is empty$`, tc.theResultIsEmpty)
	sc.Step(`^the result has (\d+) detections?$`, tc.theResultHasDetections)
	sc.Step(`^the engine was not called$`, tc.theEngineWasNotCalled)
	sc.Step(`^the engine received a tensor of shape (\d+)x(\d+)x(\d+)x(\d+)$`, tc.theEngineReceivedShape)
}

// RegisterStatusSteps registers system status and error reporting steps.
func (tc *TestContext) RegisterStatusSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the inference runtime is unavailable: "([^"]*)"$`, tc.theRuntimeIsUnavailable)
	sc.Step(`^I request the system status$`, tc.iRequestTheSystemStatus)
	sc.Step(`^the status has exactly three fields$`, tc.theStatusHasThreeFields)
	sc.Step(`^the status code is (\d+)$`, tc.theStatusCodeIs)
	sc.Step(`^the status message is "([^"]*)"$`, tc.theStatusMessageIs)
	sc.Step(`^the last error is empty$`, tc.theLastErrorIsEmpty)
	sc.Step(`^the last error contains "([^"]*)"$`, tc.theLastErrorContains)
	sc.Step(`^the last error on caller (\d+) contains "([^"]*)"$`, tc.theLastErrorOnCallerContains)
	sc.Step(`^the last error on caller (\d+) is empty$`, tc.theLastErrorOnCallerIsEmpty)
	sc.Step(`^I switch to caller (\d+)$`, tc.iSwitchToCaller)
	sc.Step(`^the metrics contain "(.*)"$`, tc.theMetricsContain)
}

func (tc *TestContext) theLabels(list string) error {
	tc.Labels = strings.Split(list, ",")
	return nil
}

func (tc *TestContext) aModelThatReports(table *godog.Table) error {
	if len(table.Rows) < 2 {
		return errors.New("table needs a header and at least one row")
	}
	tc.Output = tc.Output[:0]
	for _, row := range table.Rows[1:] {
		if len(row.Cells) != 6 {
			return fmt.Errorf("expected 6 columns, got %d", len(row.Cells))
		}
		for _, cell := range row.Cells {
			v, err := strconv.ParseFloat(cell.Value, 32)
			if err != nil {
				return fmt.Errorf("bad value %q: %w", cell.Value, err)
			}
			tc.Output = append(tc.Output, float32(v))
		}
	}
	return nil
}

func (tc *TestContext) aModelThatReportsNothing() error {
	tc.Output = nil
	return nil
}

func (tc *TestContext) theBusyPolicyIs(policy string) error {
	tc.Config.Detector.BusyPolicy = policy
	return nil
}

func (tc *TestContext) aLoadedDetector() error {
	if err := tc.iInitializeADetector(); err != nil {
		return err
	}
	return tc.theHandleIsValid()
}

func (tc *TestContext) iInitializeADetector() error {
	tc.Handle = tc.Bridge().InitDetector(tc.Caller, tc.ModelPath)
	return nil
}

func (tc *TestContext) iInitializeADetectorFrom(name string) error {
	tc.Handle = tc.Bridge().InitDetector(tc.Caller, filepath.Join(tc.Dir, name))
	return nil
}

func (tc *TestContext) iFreeTheDetector() error {
	tc.Bridge().FreeDetector(tc.Caller, tc.Handle)
	return nil
}

func (tc *TestContext) iFreeHandle(h int) error {
	tc.Bridge().FreeDetector(tc.Caller, registry.Handle(h))
	return nil
}

func (tc *TestContext) callersCreateAndFree(callers, rounds int) error {
	b := tc.Bridge()
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for c := range callers {
		wg.Add(1)
		go func(ctx bridge.ContextID) {
			defer wg.Done()
			for range rounds {
				h := b.InitDetector(ctx, tc.ModelPath)
				if h == 0 {
					errs <- fmt.Errorf("caller %d: %s", ctx, b.LastError(ctx))
					return
				}
				if _, ok := b.DetectSymbols(ctx, h, testutil.SolidImage(2, 2, 3, 128), 2, 2, 3); !ok {
					errs <- fmt.Errorf("caller %d: %s", ctx, b.LastError(ctx))
					return
				}
				b.FreeDetector(ctx, h)
			}
		}(bridge.ContextID(100 + c))
	}
	wg.Wait()
	close(errs)
	return <-errs
}

func (tc *TestContext) theHandleIsValid() error {
	if tc.Handle == 0 {
		return fmt.Errorf("expected a handle, got 0 (last error: %s)", tc.Bridge().LastError(tc.Caller))
	}
	return nil
}

func (tc *TestContext) theHandleIsZero() error {
	if tc.Handle != 0 {
		return fmt.Errorf("expected handle 0, got %s", tc.Handle)
	}
	return nil
}

func (tc *TestContext) detectorsAreLoaded(n int) error {
	if got := tc.Bridge().Registry().Len(); got != n {
		return fmt.Errorf("expected %d live detectors, got %d", n, got)
	}
	return nil
}

func (tc *TestContext) iDetectSymbolsOnImage(w, h, c int) error {
	return tc.iDetectSymbolsWithBuffer(w*h*c, w, h, c)
}

func (tc *TestContext) iDetectSymbolsWithBuffer(n, w, h, c int) error {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	tc.Result, tc.OK = tc.Bridge().DetectSymbols(tc.Caller, tc.Handle, data, w, h, c)
	return nil
}

func (tc *TestContext) theCallSucceeds() error {
	if !tc.OK {
		return fmt.Errorf("call failed: %s", tc.Bridge().LastError(tc.Caller))
	}
	return nil
}

func (tc *TestContext) theCallFails() error {
	if tc.OK {
		return fmt.Errorf("call succeeded with %q", tc.Result)
	}
	return nil
}

func (tc *TestContext) theResultIs(want string) error {
	if err := tc.theCallSucceeds(); err != nil {
		return err
	}
	if tc.Result != want {
		return fmt.Errorf("expected %q, got %q", want, tc.Result)
	}
	return nil
}

func (tc *TestContext) theResultIsEmpty() error {
	return tc.theResultIs("")
}

func (tc *TestContext) theResultHasDetections(n int) error {
	dets, err := bridge.ParseDetections(tc.Result)
	if err != nil {
		return err
	}
	if len(dets) != n {
		return fmt.Errorf("expected %d detections, got %d in %q", n, len(dets), tc.Result)
	}
	return nil
}

func (tc *TestContext) theEngineWasNotCalled() error {
	if n := tc.EngineCalls(); n != 0 {
		return fmt.Errorf("engine was called %d time(s)", n)
	}
	return nil
}

func (tc *TestContext) theEngineReceivedShape(n, c, h, w int) error {
	e, err := tc.LastEngine()
	if err != nil {
		return err
	}
	got := e.LastInput().Shape
	want := []int64{int64(n), int64(c), int64(h), int64(w)}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		return fmt.Errorf("expected shape %v, got %v", want, got)
	}
	return nil
}

func (tc *TestContext) theRuntimeIsUnavailable(msg string) error {
	tc.ProbeErr = errors.New(msg)
	return nil
}

func (tc *TestContext) iRequestTheSystemStatus() error {
	tc.Status = tc.Bridge().SystemStatus(tc.Caller)
	return nil
}

func (tc *TestContext) statusFields() ([]string, error) {
	parts := strings.SplitN(tc.Status, ":", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("status %q does not have three fields", tc.Status)
	}
	return parts, nil
}

func (tc *TestContext) theStatusHasThreeFields() error {
	_, err := tc.statusFields()
	return err
}

func (tc *TestContext) theStatusCodeIs(code int) error {
	parts, err := tc.statusFields()
	if err != nil {
		return err
	}
	if parts[1] != strconv.Itoa(code) {
		return fmt.Errorf("expected status code %d, got %s", code, parts[1])
	}
	return nil
}

func (tc *TestContext) theStatusMessageIs(msg string) error {
	parts, err := tc.statusFields()
	if err != nil {
		return err
	}
	if parts[2] != msg {
		return fmt.Errorf("expected message %q, got %q", msg, parts[2])
	}
	return nil
}

func (tc *TestContext) theLastErrorIsEmpty() error {
	return tc.theLastErrorOnCallerIsEmpty(int(tc.Caller))
}

func (tc *TestContext) theLastErrorContains(want string) error {
	return tc.theLastErrorOnCallerContains(int(tc.Caller), want)
}

func (tc *TestContext) theLastErrorOnCallerContains(caller int, want string) error {
	got := tc.Bridge().LastError(bridge.ContextID(caller))
	if !strings.Contains(got, want) {
		return fmt.Errorf("expected last error of caller %d to contain %q, got %q", caller, want, got)
	}
	return nil
}

func (tc *TestContext) theLastErrorOnCallerIsEmpty(caller int) error {
	if got := tc.Bridge().LastError(bridge.ContextID(caller)); got != "" {
		return fmt.Errorf("expected no error on caller %d, got %q", caller, got)
	}
	return nil
}

func (tc *TestContext) iSwitchToCaller(caller int) error {
	tc.Caller = bridge.ContextID(caller)
	return nil
}

func (tc *TestContext) theMetricsContain(want string) error {
	text, ok := tc.Bridge().MetricsText(tc.Caller)
	if !ok {
		return errors.New(tc.Bridge().LastError(tc.Caller))
	}
	if !strings.Contains(text, want) {
		return fmt.Errorf("metrics do not contain %q", want)
	}
	return nil
}
