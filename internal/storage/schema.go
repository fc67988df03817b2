package storage

// Migrations returns the versioned schema of the engine's tables.
func Migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE contacts (
				id UUID PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				email VARCHAR(320) NOT NULL,
				first_name VARCHAR(255) NOT NULL DEFAULT '',
				last_name VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(32) NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'unsubscribed', 'bounced')),
				attributes JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				UNIQUE (user_id, email)
			);

			CREATE INDEX idx_contacts_user_status ON contacts(user_id, status);

			CREATE TABLE tags (
				id UUID PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				UNIQUE (user_id, name)
			);

			CREATE TABLE contact_tags (
				contact_id UUID NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
				tag_id UUID NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (contact_id, tag_id)
			);

			CREATE INDEX idx_contact_tags_tag_id ON contact_tags(tag_id);

			CREATE TABLE automations (
				id UUID PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				kind VARCHAR(32) NOT NULL CHECK (kind IN ('automation', 'campaign')),
				status VARCHAR(32) NOT NULL,
				definition JSONB NOT NULL,
				webhook_secret VARCHAR(255),
				scheduled_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_automations_user_kind_status ON automations(user_id, kind, status);
			CREATE INDEX idx_automations_due_campaigns ON automations(scheduled_at)
				WHERE kind = 'campaign' AND status = 'scheduled';

			CREATE TABLE templates (
				id UUID PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				subject TEXT NOT NULL,
				html TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE senders (
				id UUID PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				email VARCHAR(320) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE credentials (
				user_id VARCHAR(255) NOT NULL,
				provider VARCHAR(64) NOT NULL,
				sealed BYTEA NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (user_id, provider)
			);

			CREATE TABLE queue_jobs (
				id UUID PRIMARY KEY,
				automation_id UUID NOT NULL,
				contact_id UUID NOT NULL,
				user_id VARCHAR(255) NOT NULL,
				status VARCHAR(32) NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
				execute_at TIMESTAMP WITH TIME ZONE NOT NULL,
				payload JSONB NOT NULL DEFAULT '{"step_index": 0}',
				error_message TEXT,
				claimed_by VARCHAR(255),
				lease_expires_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_queue_jobs_due ON queue_jobs(execute_at) WHERE status = 'pending';
			CREATE INDEX idx_queue_jobs_lease ON queue_jobs(lease_expires_at) WHERE status = 'processing';
			CREATE INDEX idx_queue_jobs_automation_contact ON queue_jobs(automation_id, contact_id);
			CREATE INDEX idx_queue_jobs_user_created ON queue_jobs(user_id, created_at DESC, id DESC);

			CREATE TABLE campaign_recipients (
				campaign_id UUID NOT NULL REFERENCES automations(id) ON DELETE CASCADE,
				contact_id UUID NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (campaign_id, contact_id)
			);
		`,
		2: `
			-- Trigger events are delivered at least once; remember which were enrolled
			CREATE TABLE processed_events (
				event_id VARCHAR(255) PRIMARY KEY,
				processed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
		`,
		3: `
			-- Event ids come from callers, so they are only unique per tenant
			ALTER TABLE processed_events ADD COLUMN user_id VARCHAR(255) NOT NULL DEFAULT '';
			ALTER TABLE processed_events DROP CONSTRAINT processed_events_pkey;
			ALTER TABLE processed_events ADD PRIMARY KEY (user_id, event_id);
		`,
	}
}
