package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'active', 'paused', 'archived')),
				trigger_type VARCHAR(50) NOT NULL,
				definition JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_trigger_type ON workflows(trigger_type);

			CREATE TABLE workflow_executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				lead_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				current_step INT NOT NULL DEFAULT 0,
				total_steps INT NOT NULL DEFAULT 0,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				error TEXT,
				context JSONB DEFAULT '{}'
			);

			CREATE INDEX idx_workflow_executions_workflow_lead ON workflow_executions(workflow_id, lead_id);
			CREATE INDEX idx_workflow_executions_status ON workflow_executions(status);
		`,
		2: `
			CREATE TABLE activities (
				id VARCHAR(255) PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				action_type VARCHAR(100) NOT NULL,
				target_type VARCHAR(100) NOT NULL,
				target_id VARCHAR(255) NOT NULL,
				description TEXT,
				occurred_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_activities_target ON activities(target_type, target_id);
			CREATE INDEX idx_activities_occurred_at ON activities(occurred_at);
		`,
	}
}
