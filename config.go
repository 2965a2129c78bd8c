package workflow

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NodeType selects the tool a node invokes and the shape of its config.
type NodeType string

const (
	TypeRequirementSync NodeType = "requirement-sync"
	TypeSysMLModel      NodeType = "sysml-model"
	TypeSSPConversion   NodeType = "ssp-conversion"
	TypeSimulation      NodeType = "simulation"
	TypeResultAnalysis  NodeType = "result-analysis"
)

// NodeTypes lists every supported node type.
var NodeTypes = []NodeType{
	TypeRequirementSync,
	TypeSysMLModel,
	TypeSSPConversion,
	TypeSimulation,
	TypeResultAnalysis,
}

// ToolConfig is the closed set of per-type node configurations.
type ToolConfig interface {
	Kind() NodeType
	common() *Common
}

// Common holds settings shared by every node type.
type Common struct {
	AutoRun bool `json:"autoRun"`
}

func (c *Common) common() *Common { return c }

// RequirementSyncConfig pulls requirements from a requirements management tool.
type RequirementSyncConfig struct {
	Common
	Source   string `json:"source" validate:"required,oneof=doors polarion jama reqif"`
	Project  string `json:"project" validate:"required"`
	Baseline string `json:"baseline,omitempty"`
}

func (*RequirementSyncConfig) Kind() NodeType { return TypeRequirementSync }

// SysMLModelConfig opens a system architecture model.
type SysMLModelConfig struct {
	Common
	ModelFile string `json:"modelFile" validate:"required"`
	Tool      string `json:"tool" validate:"required,oneof=cameo capella papyrus"`
}

func (*SysMLModelConfig) Kind() NodeType { return TypeSysMLModel }

// SSPConversionConfig converts an architecture model to an SSP package or FMU.
type SSPConversionConfig struct {
	Common
	SourceModel  string `json:"sourceModel" validate:"required"`
	TargetFormat string `json:"targetFormat" validate:"required,oneof=ssp fmu"`
}

func (*SSPConversionConfig) Kind() NodeType { return TypeSSPConversion }

// SimulationConfig runs a co-simulation over the selected model.
type SimulationConfig struct {
	Common
	Model          string  `json:"model" validate:"required"`
	SimulationTime float64 `json:"simulationTime" validate:"gt=0"`
	StepSize       float64 `json:"stepSize,omitempty" validate:"omitempty,gt=0"`
	Solver         string  `json:"solver,omitempty" validate:"omitempty,oneof=euler rk4 cvode"`
}

func (*SimulationConfig) Kind() NodeType { return TypeSimulation }

// ResultAnalysisConfig evaluates simulation output against metrics.
type ResultAnalysisConfig struct {
	Common
	Metrics   []string `json:"metrics" validate:"min=1,dive,required"`
	Threshold float64  `json:"threshold,omitempty" validate:"gte=0"`
}

func (*ResultAnalysisConfig) Kind() NodeType { return TypeResultAnalysis }

var configFactories = map[NodeType]func() ToolConfig{
	TypeRequirementSync: func() ToolConfig { return &RequirementSyncConfig{} },
	TypeSysMLModel:      func() ToolConfig { return &SysMLModelConfig{} },
	TypeSSPConversion:   func() ToolConfig { return &SSPConversionConfig{} },
	TypeSimulation:      func() ToolConfig { return &SimulationConfig{} },
	TypeResultAnalysis:  func() ToolConfig { return &ResultAnalysisConfig{} },
}

// NewConfig returns an empty config for t.
func NewConfig(t NodeType) (ToolConfig, error) {
	f, ok := configFactories[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, t)
	}
	return f(), nil
}

// DecodeConfig decodes raw into the config variant for t.
// An empty raw message yields the zero config.
func DecodeConfig(t NodeType, raw json.RawMessage) (ToolConfig, error) {
	cfg, err := NewConfig(t)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("workflow: decode %s config: %w", t, err)
	}
	return cfg, nil
}

// EncodeConfig returns the JSON object form of cfg, or nil for a nil config.
func EncodeConfig(cfg ToolConfig) (json.RawMessage, error) {
	if cfg == nil {
		return nil, nil
	}
	return json.Marshal(cfg)
}

// SetAutoRun toggles the autoRun flag on cfg.
func SetAutoRun(cfg ToolConfig, on bool) {
	cfg.common().AutoRun = on
}

func cloneConfig(cfg ToolConfig) ToolConfig {
	switch c := cfg.(type) {
	case *RequirementSyncConfig:
		cp := *c
		return &cp
	case *SysMLModelConfig:
		cp := *c
		return &cp
	case *SSPConversionConfig:
		cp := *c
		return &cp
	case *SimulationConfig:
		cp := *c
		return &cp
	case *ResultAnalysisConfig:
		cp := *c
		cp.Metrics = append([]string(nil), c.Metrics...)
		return &cp
	default:
		return cfg
	}
}

// ConfigIssue describes one missing or invalid field on a node.
type ConfigIssue struct {
	NodeID  string `json:"nodeId"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i ConfigIssue) String() string {
	return fmt.Sprintf("%s.%s: %s", i.NodeID, i.Field, i.Message)
}

// validate is a singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
}

// CheckConfig returns the completeness issues for a single node.
func CheckConfig(n Node) []ConfigIssue {
	if n.Config == nil {
		return []ConfigIssue{{NodeID: n.ID, Field: "config", Message: "is missing"}}
	}
	if n.Config.Kind() != n.Type {
		return []ConfigIssue{{NodeID: n.ID, Field: "config", Message: fmt.Sprintf("is a %s config on a %s node", n.Config.Kind(), n.Type)}}
	}

	var err error
	switch c := n.Config.(type) {
	case *RequirementSyncConfig:
		err = validate.Struct(c)
	case *SysMLModelConfig:
		err = validate.Struct(c)
	case *SSPConversionConfig:
		err = validate.Struct(c)
	case *SimulationConfig:
		err = validate.Struct(c)
	case *ResultAnalysisConfig:
		err = validate.Struct(c)
	default:
		return []ConfigIssue{{NodeID: n.ID, Field: "type", Message: fmt.Sprintf("unsupported node type %q", n.Type)}}
	}
	return issuesFrom(n.ID, err)
}

func issuesFrom(nodeID string, err error) []ConfigIssue {
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []ConfigIssue{{NodeID: nodeID, Field: "config", Message: err.Error()}}
	}
	issues := make([]ConfigIssue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, ConfigIssue{
			NodeID:  nodeID,
			Field:   fe.Field(),
			Message: describe(fe),
		})
	}
	return issues
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " entries"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
