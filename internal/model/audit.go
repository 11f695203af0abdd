package model

type AuditActor struct {
	UserID    string `json:"user_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Role      string `json:"role,omitempty"`
	IP        string `json:"ip,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type AuditEntry struct {
	TenantID   string     `json:"tenant_id"`
	Action     string     `json:"action"`
	OccurredAt string     `json:"occurred_at"`
	Actor      AuditActor `json:"actor"`
	Status     string     `json:"status"`
	Resource   string     `json:"resource,omitempty"`
	Before     any        `json:"before,omitempty"`
	After      any        `json:"after,omitempty"`
	Error      string     `json:"error,omitempty"`
}

const (
	AuditStatusSuccess = "success"
	AuditStatusFailure = "failure"
)

const (
	AuditLeadCreate        = "lead.create"
	AuditLeadUpdate        = "lead.update"
	AuditLeadDelete        = "lead.delete"
	AuditOpportunityCreate = "opportunity.create"
	AuditOpportunityUpdate = "opportunity.update"
	AuditOpportunityMove   = "opportunity.move"
	AuditOpportunityDelete = "opportunity.delete"
	AuditLogin             = "auth.login"
)

type AuditQuery struct {
	TenantID string
	Action   string
	ActorID  string
	Status   string
	Resource string
	From     string
	To       string
	Page     int
	Limit    int
}

type AuditListData struct {
	Items []AuditEntry `json:"items"`
}
