package sqlstore

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const textSize = 2147483647

var (
	// ProgramsColumns holds the columns for the "programs" table.
	ProgramsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 64},
		{Name: "scenario_id", Type: field.TypeString, Size: 128},
		{Name: "user_id", Type: field.TypeString, Size: 128},
		{Name: "mode", Type: field.TypeString, Size: 32},
		{Name: "status", Type: field.TypeString, Size: 32},
		{Name: "current_task_index", Type: field.TypeInt},
		{Name: "completed_task_count", Type: field.TypeInt},
		{Name: "total_task_count", Type: field.TypeInt},
		{Name: "total_score", Type: field.TypeFloat64},
		{Name: "domain_scores", Type: field.TypeJSON, Nullable: true},
		{Name: "metadata", Type: field.TypeJSON, Nullable: true},
		{Name: "started_at", Type: field.TypeTime},
		{Name: "last_activity_at", Type: field.TypeTime},
		{Name: "completed_at", Type: field.TypeTime, Nullable: true},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// ProgramsTable holds the schema information for the "programs" table.
	ProgramsTable = &schema.Table{
		Name:       "programs",
		Columns:    ProgramsColumns,
		PrimaryKey: []*schema.Column{ProgramsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "program_user_id", Unique: false, Columns: []*schema.Column{ProgramsColumns[2]}},
		},
	}

	// TasksColumns holds the columns for the "tasks" table.
	TasksColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 64},
		{Name: "program_id", Type: field.TypeString, Size: 64},
		{Name: "task_index", Type: field.TypeInt},
		{Name: "template_index", Type: field.TypeInt},
		{Name: "type", Type: field.TypeString, Size: 32},
		{Name: "status", Type: field.TypeString, Size: 32},
		{Name: "content", Type: field.TypeJSON},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
		{Name: "completed_at", Type: field.TypeTime, Nullable: true},
	}
	// TasksTable holds the schema information for the "tasks" table.
	TasksTable = &schema.Table{
		Name:       "tasks",
		Columns:    TasksColumns,
		PrimaryKey: []*schema.Column{TasksColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "tasks_programs_tasks",
				Columns:    []*schema.Column{TasksColumns[1]},
				RefColumns: []*schema.Column{ProgramsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "task_program_id_task_index", Unique: true, Columns: []*schema.Column{TasksColumns[1], TasksColumns[2]}},
		},
	}

	// InteractionsColumns holds the columns for the "interactions" table.
	InteractionsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 64},
		{Name: "task_id", Type: field.TypeString, Size: 64},
		{Name: "sequence", Type: field.TypeInt64},
		{Name: "event_type", Type: field.TypeString, Size: 32},
		{Name: "payload", Type: field.TypeJSON},
		{Name: "timestamp", Type: field.TypeTime},
	}
	// InteractionsTable holds the schema information for the "interactions" table.
	InteractionsTable = &schema.Table{
		Name:       "interactions",
		Columns:    InteractionsColumns,
		PrimaryKey: []*schema.Column{InteractionsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "interactions_tasks_interactions",
				Columns:    []*schema.Column{InteractionsColumns[1]},
				RefColumns: []*schema.Column{TasksColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "interaction_sequence", Unique: true, Columns: []*schema.Column{InteractionsColumns[2]}},
			{Name: "interaction_task_id", Unique: false, Columns: []*schema.Column{InteractionsColumns[1]}},
		},
	}

	// EvaluationsColumns holds the columns for the "evaluations" table.
	EvaluationsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 64},
		{Name: "user_id", Type: field.TypeString, Size: 128},
		{Name: "program_id", Type: field.TypeString, Size: 64},
		{Name: "task_id", Type: field.TypeString, Size: 64},
		{Name: "mode", Type: field.TypeString, Size: 32},
		{Name: "evaluation_type", Type: field.TypeString, Size: 32},
		{Name: "score", Type: field.TypeFloat64},
		{Name: "max_score", Type: field.TypeFloat64},
		{Name: "domain_scores", Type: field.TypeJSON, Nullable: true},
		{Name: "feedback", Type: field.TypeJSON, Nullable: true},
		{Name: "time_taken_seconds", Type: field.TypeFloat64},
		{Name: "metadata", Type: field.TypeJSON},
		{Name: "created_at", Type: field.TypeTime},
	}
	// EvaluationsTable holds the schema information for the "evaluations" table.
	EvaluationsTable = &schema.Table{
		Name:       "evaluations",
		Columns:    EvaluationsColumns,
		PrimaryKey: []*schema.Column{EvaluationsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "evaluations_programs_evaluations",
				Columns:    []*schema.Column{EvaluationsColumns[2]},
				RefColumns: []*schema.Column{ProgramsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "evaluation_program_id_task_id", Unique: true, Columns: []*schema.Column{EvaluationsColumns[2], EvaluationsColumns[3]}},
		},
	}

	// LlmRequestsColumns holds the columns for the "llm_requests" table.
	LlmRequestsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "sequence", Type: field.TypeInt64},
		{Name: "timestamp", Type: field.TypeTime},
		{Name: "provider", Type: field.TypeString, Size: 64},
		{Name: "model", Type: field.TypeString, Size: 128},
		{Name: "purpose", Type: field.TypeString, Size: 64},
		{Name: "input_tokens", Type: field.TypeInt},
		{Name: "output_tokens", Type: field.TypeInt},
		{Name: "latency_ms", Type: field.TypeInt64},
		{Name: "success", Type: field.TypeBool},
		{Name: "error_message", Type: field.TypeString, Size: textSize, Default: ""},
		{Name: "request_body", Type: field.TypeString, Size: textSize, Default: ""},
		{Name: "response_body", Type: field.TypeString, Size: textSize, Default: ""},
	}
	// LlmRequestsTable holds the schema information for the "llm_requests" table.
	LlmRequestsTable = &schema.Table{
		Name:       "llm_requests",
		Columns:    LlmRequestsColumns,
		PrimaryKey: []*schema.Column{LlmRequestsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "llmrequest_purpose", Unique: false, Columns: []*schema.Column{LlmRequestsColumns[5]}},
		},
	}

	// GlobalSequenceColumns holds the columns for the "global_sequence" table.
	GlobalSequenceColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt},
		{Name: "next_val", Type: field.TypeInt64, Default: 1},
	}
	// GlobalSequenceTable holds the counter row shared by every appended interaction.
	GlobalSequenceTable = &schema.Table{
		Name:       "global_sequence",
		Columns:    GlobalSequenceColumns,
		PrimaryKey: []*schema.Column{GlobalSequenceColumns[0]},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		ProgramsTable,
		TasksTable,
		InteractionsTable,
		EvaluationsTable,
		LlmRequestsTable,
		GlobalSequenceTable,
	}
)

func init() {
	TasksTable.ForeignKeys[0].RefTable = ProgramsTable
	InteractionsTable.ForeignKeys[0].RefTable = TasksTable
	EvaluationsTable.ForeignKeys[0].RefTable = ProgramsTable
}

// migrate creates or upgrades all tables.
func migrate(ctx context.Context, drv dialect.Driver) error {
	m, err := schema.NewMigrate(drv, schema.WithForeignKeys(true))
	if err != nil {
		return fmt.Errorf("new migrate: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}
