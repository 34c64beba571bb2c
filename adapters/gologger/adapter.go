package gologger

import (
	"io"
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// RootName is the logger name shared by every intake component.
const RootName = "intake"

// NewRoot builds the process logger. Format "text" or "console" selects
// key=value lines, "pretty" the colored console handler, anything else JSON.
// Components derive named children through GetLogger.
func NewRoot(w io.Writer, level string, format string) *glog.BaseLogger {
	opts := []glog.Option{
		glog.WithName(RootName),
		glog.WithLevel(strings.TrimSpace(level)),
		glog.WithWriter(w),
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text", glog.LoggerTypeConsole:
		opts = append(opts, glog.WithLoggerTypeConsole())
	case glog.LoggerTypePretty:
		opts = append(opts, glog.WithLoggerTypePretty())
	default:
		opts = append(opts, glog.WithLoggerTypeJSON())
	}
	return glog.NewLogger(opts...)
}

// Name returns the dotted logger name for an intake component.
func Name(component string) string {
	component = strings.Trim(strings.TrimSpace(component), ".")
	if component == "" || component == RootName {
		return RootName
	}
	if strings.HasPrefix(component, RootName+".") {
		return component
	}
	return RootName + "." + component
}

// Resolve picks the component logger with precedence provider > logger > nop.
func Resolve(component string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(Name(component), provider, logger)
}

// Components resolves one named logger per component.
func Components(provider glog.LoggerProvider, logger glog.Logger, components ...string) map[string]glog.Logger {
	out := make(map[string]glog.Logger, len(components))
	for _, component := range components {
		_, resolved := Resolve(component, provider, logger)
		out[component] = resolved
	}
	return out
}

func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the component logger and returns the go-job bridges
// used by the scheduled job worker.
func ResolveForJob(
	component string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(component, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}
