package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
)

// StageVertex defines a stage node in the pipeline DAG.
// Label identifies the stage, Inputs/Outputs name the values flowing along its edges.
type StageVertex struct {
	Label   string
	Inputs  []string
	Outputs []string
}

type stageVertex struct {
	label   string
	inputs  []string
	outputs []string

	run func([]any) ([]any, error)
}

func stageVertexHash(n *stageVertex) string {
	return n.label
}

// Pipeline runs stages as a Directed Acyclic Graph, each stage once, in topological order.
type Pipeline struct {
	graph graph.Graph[string, *stageVertex]

	logger *slog.Logger
}

// NewPipeline creates a new pipeline from stage vertex definitions.
// Validates DAG structure, ensures unique output labels, and connects every input to the
// stage producing it. An output can be consumed by at most one stage.
func NewPipeline(vertices []StageVertex, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	g := graph.New(stageVertexHash, graph.Directed(), graph.Acyclic(), graph.PreventCycles())

	outputEdges := make(map[string]string)
	// Add vertices
	for _, vertex := range vertices {
		if err := g.AddVertex(&stageVertex{
			label:   vertex.Label,
			inputs:  vertex.Inputs,
			outputs: vertex.Outputs,
		},
			graph.VertexAttribute("shape", "box"),
			graph.VertexAttribute("style", "rounded"),
		); err != nil {
			return nil, fmt.Errorf("vertex %s: %w", vertex.Label, err)
		}
		for _, output := range vertex.Outputs {
			if _, present := outputEdges[output]; present {
				return nil, fmt.Errorf("output %s already present", output)
			}
			outputEdges[output] = vertex.Label
		}
	}

	// Add edges, each output feeding exactly one input
	consumers := make(map[string]string)
	for _, vertex := range vertices {
		for _, input := range vertex.Inputs {
			inputVertex, outputPresent := outputEdges[input]
			if !outputPresent {
				return nil, fmt.Errorf("output %s not found", input)
			}
			if consumer, consumed := consumers[input]; consumed {
				return nil, fmt.Errorf("output %s already consumed by %s", input, consumer)
			}
			consumers[input] = vertex.Label
			if err := g.AddEdge(inputVertex, vertex.Label, graph.EdgeAttribute("label", input)); err != nil {
				return nil, fmt.Errorf("edge %s -> %s: %w", inputVertex, vertex.Label, err)
			}
		}
	}

	return &Pipeline{
		graph:  g,
		logger: logger,
	}, nil
}

func (ppl *Pipeline) addStage(label string, numIn, numOut int, run func([]any) ([]any, error)) error {
	sv, err := ppl.graph.Vertex(label)
	if err != nil {
		if errors.Is(err, graph.ErrVertexNotFound) {
			return fmt.Errorf("stage cannot be added: vertex %s not found", label)
		}
		return fmt.Errorf("stage cannot be added to vertex %s: %w", label, err)
	}

	if sv.run != nil {
		return fmt.Errorf("vertex %s already has a stage", label)
	}

	if len(sv.inputs) != numIn {
		return fmt.Errorf("vertex %s requires %d inputs, but stage takes in %d", label, len(sv.inputs), numIn)
	}

	if len(sv.outputs) != numOut {
		return fmt.Errorf("vertex %s requires %d outputs, but stage has %d", label, len(sv.outputs), numOut)
	}

	sv.run = run
	return nil
}

// AddSource registers a stage without inputs producing a single value.
func AddSource[Out any](ppl *Pipeline, label string, fn func() (Out, error)) error {
	return ppl.addStage(label, 0, 1, func([]any) ([]any, error) {
		out, err := fn()
		if err != nil {
			return nil, err
		}
		return []any{out}, nil
	})
}

// AddStage registers a stage turning one value into another.
func AddStage[In, Out any](ppl *Pipeline, label string, fn func(In) (Out, error)) error {
	return ppl.addStage(label, 1, 1, func(ins []any) ([]any, error) {
		in, err := valueAs[In](ins[0])
		if err != nil {
			return nil, err
		}
		out, err := fn(in)
		if err != nil {
			return nil, err
		}
		return []any{out}, nil
	})
}

// AddSink registers a stage consuming a single value.
func AddSink[In any](ppl *Pipeline, label string, fn func(In) error) error {
	return ppl.addStage(label, 1, 0, func(ins []any) ([]any, error) {
		in, err := valueAs[In](ins[0])
		if err != nil {
			return nil, err
		}
		return nil, fn(in)
	})
}

func valueAs[T any](v any) (T, error) {
	t, ok := v.(T)
	if !ok {
		return t, fmt.Errorf("input is %T, stage expects %s", v, reflect.TypeFor[T]())
	}
	return t, nil
}

// Order returns the stage labels in the order Run executes them.
func (ppl *Pipeline) Order() ([]string, error) {
	return graph.StableTopologicalSort(ppl.graph, func(a, b string) bool { return a < b })
}

// Run executes every stage in topological order, handing each output to the stage that
// consumes it. The first failing stage stops the pipeline.
func (ppl *Pipeline) Run() error {
	order, err := ppl.Order()
	if err != nil {
		return fmt.Errorf("failed to run pipeline: %w", err)
	}

	// Check all vertices have an associated stage
	for _, label := range order {
		sv, err := ppl.graph.Vertex(label)
		if err != nil {
			return fmt.Errorf("failed to run pipeline: %w", err)
		}
		if sv.run == nil {
			return fmt.Errorf("failed to run pipeline: vertex %s has not been added with a stage", label)
		}
	}

	values := make(map[string]any)
	for _, label := range order {
		sv, err := ppl.graph.Vertex(label)
		if err != nil {
			return err
		}

		ins := make([]any, len(sv.inputs))
		for i, input := range sv.inputs {
			v, ok := values[input]
			if !ok {
				return fmt.Errorf("stage %s: input %s not found", label, input)
			}
			delete(values, input)
			ins[i] = v
		}

		ppl.logger.Debug("Running stage", "stage", label)
		outs, err := sv.run(ins)
		if err != nil {
			return fmt.Errorf("stage %s: %w", label, err)
		}

		for i, output := range sv.outputs {
			values[output] = outs[i]
		}
	}

	return nil
}

// DumpDot exports the pipeline topology in Graphviz DOT format.
func (ppl *Pipeline) DumpDot(w io.Writer) error {
	return draw.DOT(ppl.graph, w)
}
