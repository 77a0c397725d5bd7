package kernel

import (
	"github.com/justapithecus/vkernel/classify"
	"github.com/justapithecus/vkernel/types"
	"github.com/justapithecus/vkernel/wire"
)

// Error content for failed executions. Every failure kind is reported under
// the same name so front-ends render it uniformly.
const (
	ErrorName  = "CompileError"
	ErrorValue = "V compilation or runtime error"
)

// Banner is the kernel_info banner.
const Banner = "V kernel for Zed — stateful REPL powered by v-kernel"

// KernelInfo returns the kernel_info_reply content.
func KernelInfo() wire.Dict {
	return wire.Dict{
		"status":                 "ok",
		"protocol_version":       types.ProtocolVersion,
		"implementation":         types.Implementation,
		"implementation_version": types.Version,
		"language_info": wire.Dict{
			"name":            "v",
			"version":         "0.4",
			"mimetype":        "text/x-vlang",
			"file_extension":  ".v",
			"pygments_lexer":  "v",
			"codemirror_mode": "clike",
		},
		"banner": Banner,
		"help_links": []any{
			wire.Dict{"text": "V Documentation", "url": "https://docs.vlang.io/"},
		},
	}
}

// Traceback splits stderr into traceback lines. Never nil, so it encodes
// as a JSON array.
func Traceback(stderr string) []string {
	lines := classify.Lines(stderr)
	if lines == nil {
		return []string{}
	}
	return lines
}

func executeReplyContent(res types.ExecutionResult, count int) wire.Dict {
	if res.IsError {
		return wire.Dict{
			"status":          "error",
			"execution_count": count,
			"ename":           ErrorName,
			"evalue":          ErrorValue,
			"traceback":       Traceback(res.Stderr),
		}
	}
	return wire.Dict{
		"status":           "ok",
		"execution_count":  count,
		"payload":          []any{},
		"user_expressions": wire.Dict{},
	}
}

func errorContent(stderr string) wire.Dict {
	return wire.Dict{
		"ename":     ErrorName,
		"evalue":    ErrorValue,
		"traceback": Traceback(stderr),
	}
}

func streamContent(name, text string) wire.Dict {
	return wire.Dict{"name": name, "text": text}
}

func statusContent(state string) wire.Dict {
	return wire.Dict{"execution_state": state}
}
