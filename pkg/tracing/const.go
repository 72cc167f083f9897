package tracing

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys used by dagger
const (
	AttrKeyDaggerErrorCode    = "dagger.error.code"
	AttrKeyDaggerWorkflowId   = "dagger.workflow.id"
	AttrKeyDaggerWorkflowCid  = "dagger.workflow.cid"
	AttrKeyDaggerTaskName     = "dagger.task.name"
	AttrKeyDaggerTaskState    = "dagger.task.state"
	AttrKeyDaggerExecName     = "dagger.exec.name"
	AttrKeyDaggerExecPhase    = "dagger.exec.phase"
)

// Attribute values
const (
	AttrValueExecNameFunc     = "func"
	AttrValueExecNameProcess  = "process"
	AttrValueExecNameGit      = "git"
	AttrValueExecPhaseCollect = "collect"
	AttrValueExecPhaseRun     = "run"
	AttrValueExecPhaseFinal   = "finalize"
)

// Enumerated attributes
var (
	AttrFullExecNameFunc     = attribute.String(AttrKeyDaggerExecName, AttrValueExecNameFunc)
	AttrFullExecNameProcess  = attribute.String(AttrKeyDaggerExecName, AttrValueExecNameProcess)
	AttrFullExecNameGit      = attribute.String(AttrKeyDaggerExecName, AttrValueExecNameGit)
	AttrFullExecPhaseCollect = attribute.String(AttrKeyDaggerExecPhase, AttrValueExecPhaseCollect)
	AttrFullExecPhaseRun     = attribute.String(AttrKeyDaggerExecPhase, AttrValueExecPhaseRun)
	AttrFullExecPhaseFinal   = attribute.String(AttrKeyDaggerExecPhase, AttrValueExecPhaseFinal)
)
