package postgres

// GetMigrations returns all embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_students", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_interventions", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_indicators", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- seq keeps data source order across upserts
CREATE TABLE IF NOT EXISTS students (
    seq BIGSERIAL,
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    grade TEXT NOT NULL DEFAULT '',
    risk_score INTEGER NOT NULL,
    trend VARCHAR(10) NOT NULL DEFAULT 'stable',
    risk_factors TEXT[] NOT NULL DEFAULT '{}',
    predicted_risk INTEGER NOT NULL DEFAULT 0,
    confidence INTEGER NOT NULL DEFAULT 0,
    last_updated TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_risk_score CHECK (risk_score BETWEEN 0 AND 100),
    CONSTRAINT valid_predicted_risk CHECK (predicted_risk BETWEEN 0 AND 100),
    CONSTRAINT valid_confidence CHECK (confidence BETWEEN 0 AND 100),
    CONSTRAINT valid_trend CHECK (trend IN ('up', 'down', 'stable'))
);

CREATE INDEX IF NOT EXISTS idx_students_seq ON students(seq);
CREATE INDEX IF NOT EXISTS idx_students_risk_score ON students(risk_score DESC);

CREATE TABLE IF NOT EXISTS student_risk_factors (
    student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    category VARCHAR(20) NOT NULL,
    trend VARCHAR(10) NOT NULL DEFAULT 'stable',
    weight INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY (student_id, position),
    CONSTRAINT valid_weight CHECK (weight BETWEEN 0 AND 100)
);
`

const migration001Down = `
DROP TABLE IF EXISTS student_risk_factors;
DROP TABLE IF EXISTS students;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: INTERVENTIONS & AUDIT
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS interventions (
    seq BIGSERIAL,
    id TEXT PRIMARY KEY,
    student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    type TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    assignee TEXT NOT NULL DEFAULT '',
    due_date TIMESTAMP WITH TIME ZONE NOT NULL,
    impact INTEGER,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    started_at TIMESTAMP WITH TIME ZONE,
    completed_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_status CHECK (status IN ('pending', 'in-progress', 'overdue', 'completed')),
    CONSTRAINT valid_impact CHECK (impact IS NULL OR impact BETWEEN 0 AND 100)
);

CREATE INDEX IF NOT EXISTS idx_interventions_student ON interventions(student_id, seq);
CREATE INDEX IF NOT EXISTS idx_interventions_open_due ON interventions(due_date) WHERE status <> 'completed';

-- append-only
CREATE TABLE IF NOT EXISTS intervention_audit (
    seq BIGSERIAL PRIMARY KEY,
    id UUID NOT NULL UNIQUE,
    intervention_id TEXT NOT NULL REFERENCES interventions(id) ON DELETE CASCADE,
    student_id TEXT NOT NULL,
    action VARCHAR(20) NOT NULL,
    actor_name TEXT NOT NULL,
    actor_role TEXT NOT NULL DEFAULT '',
    from_status VARCHAR(20) NOT NULL,
    to_status VARCHAR(20) NOT NULL,
    outcome VARCHAR(10) NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    at TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_intervention_audit_iv ON intervention_audit(intervention_id, at, seq);
`

const migration002Down = `
DROP TABLE IF EXISTS intervention_audit;
DROP TABLE IF EXISTS interventions;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: EARLY WARNING INDICATORS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS early_warning_indicators (
    seq BIGSERIAL,
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    urgency VARCHAR(10) NOT NULL,
    detected_at TIMESTAMP WITH TIME ZONE NOT NULL,
    confidence INTEGER NOT NULL DEFAULT 0,
    affected_students INTEGER NOT NULL DEFAULT 0,
    trend VARCHAR(10) NOT NULL DEFAULT 'stable'
);

CREATE INDEX IF NOT EXISTS idx_indicators_detected ON early_warning_indicators(detected_at DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS early_warning_indicators;
`
