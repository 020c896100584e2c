package telemetry

import "fmt"

// Signal paths of the DAE, relative to the instrument prefix.
const (
	PathRunState        = "DAE:RUNSTATE"
	PathRunNumber       = "DAE:IRUNNUMBER"
	PathTitle           = "DAE:TITLE"
	PathGoodFrames      = "DAE:GOODFRAMES"
	PathRawFrames       = "DAE:RAWFRAMES"
	PathGoodUAH         = "DAE:GOODUAH"
	PathMEvents         = "DAE:MEVENTS"
	PathCountRate       = "DAE:COUNTRATE"
	PathTotalCounts     = "DAE:TOTALCOUNTS"
	PathNumSpectra      = "DAE:NUMSPECTRA"
	PathNumTimeChannels = "DAE:NUMTIMECHANNELS"
	PathSpecIntegrals   = "DAE:SPECINTEGRALS"

	// Run controls. Triggered, never read.
	PathBeginRun   = "DAE:BEGINRUN"
	PathBeginRunEx = "DAE:BEGINRUNEX"
	PathEndRun     = "DAE:ENDRUN"
	PathAbortRun   = "DAE:ABORTRUN"
	PathPauseRun   = "DAE:PAUSERUN"
	PathResumeRun  = "DAE:RESUMERUN"

	// Period subsystem.
	PathPeriod           = "DAE:PERIOD"
	PathPeriodSetpoint   = "DAE:PERIOD:SP"
	PathNumPeriods       = "DAE:NUMPERIODS"
	PathPeriodGoodFrames = "DAE:GOODFRAMES_PD"
	PathPeriodRawFrames  = "DAE:RAWFRAMES_PD"
	PathPeriodGoodUAH    = "DAE:GOODUAH_PD"

	// Monitor subsystem. MONITORSPECTRUM is the spectrum number and
	// MONITORCOUNTS the integrated counts.
	PathMonitorSpectrum = "DAE:MONITORSPECTRUM"
	PathMonitorCounts   = "DAE:MONITORCOUNTS"
	PathMonitorFrom     = "DAE:MONITORFROM"
	PathMonitorTo       = "DAE:MONITORTO"

	// Event-mode subsystem.
	PathEventModeFraction = "DAE:EVENTMODEFRACTION"
	PathEventModeBufUsed  = "DAE:EVENTMODEBUFUSED"
	PathEventModeFileMB   = "DAE:EVENTMODEFILEMB"
	PathEventModeDataRate = "DAE:EVENTMODEDATARATE"
)

// SpectrumCountsPath returns the path of the raw counts array of spectrum spec
// in period. Period 0 addresses the current period.
func SpectrumCountsPath(period, spec int) string {
	return fmt.Sprintf("DAE:SPEC:%d:%d:YC", period, spec)
}

// SpectrumTOFPath returns the path of the time-of-flight bin edges of spectrum spec.
func SpectrumTOFPath(period, spec int) string {
	return fmt.Sprintf("DAE:SPEC:%d:%d:X", period, spec)
}
