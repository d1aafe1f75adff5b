package session

import "time"

// Role 发言方
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn 对话历史中的一条记录
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// EntityType 实体类别，超出枚举的值统一归为 Other。
type EntityType string

const (
	EntityPerson       EntityType = "Person"
	EntityPlace        EntityType = "Place"
	EntityDate         EntityType = "Date"
	EntityOrganization EntityType = "Organization"
	EntityProduct      EntityType = "Product"
	EntityOther        EntityType = "Other"
)

// NormalizeEntityType 把任意标签归一到固定枚举
func NormalizeEntityType(raw string) EntityType {
	switch EntityType(raw) {
	case EntityPerson, EntityPlace, EntityDate, EntityOrganization, EntityProduct:
		return EntityType(raw)
	default:
		return EntityOther
	}
}

// Entity 用户提到的实体
type Entity struct {
	Name       string     `json:"name"`
	Type       EntityType `json:"type"`
	Confidence float64    `json:"confidence"`
}

// Relationship 用自由谓词连接两个实体
type Relationship struct {
	Subject  string `json:"subject"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

const (
	DefaultSentiment = "Neutral"
	DefaultIntent    = "other"
)

// Extraction 最近一次完成的结构化抽取结果
type Extraction struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
	Sentiment     string         `json:"sentiment"`
	Intent        string         `json:"intent"`
	MissingInfo   []string       `json:"missing_info"`
}

// Session 单个会话的完整状态。
type Session struct {
	ID                    string     `json:"session_id"`
	History               []Turn     `json:"history"`
	TurnCount             int        `json:"turn_count"`
	Extraction            Extraction `json:"extraction"`
	PendingClarification  bool       `json:"pending_clarification"`
	ClarificationQuestion string     `json:"clarification_question,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	LastActive            time.Time  `json:"last_active"`
}

// New 创建带默认标签的新会话
func New(id string, now time.Time) Session {
	return Session{
		ID:      id,
		History: []Turn{},
		Extraction: Extraction{
			Entities:      []Entity{},
			Relationships: []Relationship{},
			Sentiment:     DefaultSentiment,
			Intent:        DefaultIntent,
			MissingInfo:   []string{},
		},
		CreatedAt:  now,
		LastActive: now,
	}
}

// Clone 深拷贝，调用方不会与存储共享切片
func (s Session) Clone() Session {
	out := s
	out.History = cloneSlice(s.History)
	out.Extraction.Entities = cloneSlice(s.Extraction.Entities)
	out.Extraction.Relationships = cloneSlice(s.Extraction.Relationships)
	out.Extraction.MissingInfo = cloneSlice(s.Extraction.MissingInfo)
	return out
}

func cloneSlice[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// RecentHistory 返回最近的至多 limit 条记录
func (s Session) RecentHistory(limit int) []Turn {
	if limit <= 0 || len(s.History) <= limit {
		return cloneSlice(s.History)
	}
	return cloneSlice(s.History[len(s.History)-limit:])
}

// Summary 会话的列表视图
type Summary struct {
	ID          string  `json:"session_id"`
	TurnCount   int     `json:"turn_count"`
	Sentiment   string  `json:"sentiment"`
	IdleSeconds float64 `json:"idle_seconds"`
}
