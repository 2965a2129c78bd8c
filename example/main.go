package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/engine"
	"github.com/meikuraledutech/workflow/memory"
	"github.com/meikuraledutech/workflow/notify"
	"github.com/meikuraledutech/workflow/postgres"
)

func main() {
	ctx := context.Background()

	// Postgres when DATABASE_URL is set, otherwise everything stays in memory.
	var store workflow.Store = memory.New()
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := postgres.Connect(ctx, dbURL)
		if err != nil {
			log.Fatalf("connect: %v", err)
		}
		defer pool.Close()
		store = postgres.New(pool)
	}

	// 1. Create tables
	if err := store.CreateSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}
	fmt.Println("schema created")

	// ── Bulk insert using refs ────────────────────────────────────────
	// requirements fan out to the architecture model and the SSP package,
	// both feed the simulation, and the analysis waits on the simulation.
	doc := &workflow.Workflow{
		ID:   "brake-study",
		Name: "Brake system verification",
		Nodes: []workflow.Node{
			{Ref: "req", Type: workflow.TypeRequirementSync, Name: "Requirements",
				Config: &workflow.RequirementSyncConfig{Source: "polarion", Project: "brake"}},
			{Ref: "arch", Type: workflow.TypeSysMLModel, Name: "Architecture",
				Config: &workflow.SysMLModelConfig{ModelFile: "brake.sysml", Tool: "capella"}},
			{Ref: "ssp", Type: workflow.TypeSSPConversion, Name: "Package",
				Config: &workflow.SSPConversionConfig{SourceModel: "brake.sysml", TargetFormat: "ssp"}},
			{Ref: "sim", Type: workflow.TypeSimulation, Name: "Simulate",
				Config: &workflow.SimulationConfig{Model: "brake.ssp", SimulationTime: 12, Solver: "rk4"}},
			{Ref: "ana", Type: workflow.TypeResultAnalysis, Name: "Analyse",
				Config: &workflow.ResultAnalysisConfig{Metrics: []string{"stopping_distance"}, Threshold: 40}},
		},
		Connections: []workflow.Connection{
			{FromRef: "req", ToRef: "arch"},
			{FromRef: "req", ToRef: "ssp"},
			{FromRef: "arch", ToRef: "sim"},
			{FromRef: "ssp", ToRef: "sim"},
			{FromRef: "sim", ToRef: "ana", Label: "results"},
		},
	}
	created, err := store.CreateWorkflow(ctx, doc)
	if err != nil {
		log.Fatalf("create workflow: %v", err)
	}
	fmt.Println("workflow created (bulk with refs)")
	printJSON(created)

	opts := engine.DefaultOptions()
	opts.MinDuration, opts.MaxDuration = 200*time.Millisecond, 400*time.Millisecond
	opts.Notifier = notify.Log{}
	manager := engine.NewManager(store, opts)

	// ── Preflight: every node starts with autoRun off ─────────────────
	if err := manager.Preflight(ctx, doc.ID); err != nil {
		fmt.Printf("\npreflight: %v\n", err)
	}
	changed, err := manager.EnableAutoRun(ctx, doc.ID)
	if err != nil {
		log.Fatalf("enable autoRun: %v", err)
	}
	fmt.Printf("autoRun enabled on %d nodes\n", len(changed))

	// ── Run ───────────────────────────────────────────────────────────
	exec, err := manager.Start(ctx, doc.ID)
	if err != nil {
		log.Fatalf("start: %v", err)
	}
	fmt.Printf("\nexecution order: %v\n", exec.ExecutionOrder)

	wctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := manager.Wait(wctx, doc.ID); err != nil {
		log.Fatalf("wait: %v", err)
	}

	history, err := store.ListExecutions(ctx, doc.ID)
	if err != nil {
		log.Fatalf("list executions: %v", err)
	}
	if len(history) == 0 {
		log.Fatal("run was not archived")
	}
	fmt.Println("\nexecution record:")
	printJSON(history[len(history)-1])

	// ── Cleanup ───────────────────────────────────────────────────────
	if err := store.DeleteWorkflow(ctx, doc.ID); err != nil {
		log.Fatalf("delete: %v", err)
	}
	fmt.Println("\nworkflow deleted")
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
