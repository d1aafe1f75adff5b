package sentiment

import "strings"

// Label 用户情绪标签。
type Label string

const (
	Positive   Label = "Positive"
	Negative   Label = "Negative"
	Neutral    Label = "Neutral"
	Frustrated Label = "Frustrated"
	Excited    Label = "Excited"
)

// Intent 用户意图标签。
type Intent string

const (
	Booking   Intent = "booking"
	Inquiry   Intent = "inquiry"
	Complaint Intent = "complaint"
	Greeting  Intent = "greeting"
	Other     Intent = "other"
)

// Decision 给出情绪与意图的判定结果。
type Decision struct {
	Sentiment Label
	Intent    Intent
	Score     int
}

var sentimentBuckets = map[Label][]string{
	Positive: {
		"thanks", "thank you", "great", "good", "love", "perfect", "nice", "appreciate", "wonderful",
		"谢谢", "太好了", "喜欢", "满意", "不错",
	},
	Negative: {
		"sad", "bad", "unhappy", "disappointed", "terrible", "awful", "sorry", "upset", "worried",
		"难过", "失望", "糟糕", "伤心",
	},
	Frustrated: {
		"again", "still", "ridiculous", "annoyed", "angry", "fed up", "waste", "not working", "broken",
		"useless", "frustrated", "frustrating", "生气", "烦死", "受够了",
	},
	Excited: {
		"amazing", "awesome", "can't wait", "wow", "excited", "incredible", "fantastic",
		"激动", "期待", "太棒了", "哇",
	},
}

var intentBuckets = map[Intent][]string{
	Booking: {
		"book", "reserve", "reservation", "ticket", "flight", "appointment", "schedule", "table for",
		"预订", "预约", "订票",
	},
	Complaint: {
		"complain", "complaint", "refund", "broken", "not working", "wrong", "terrible service",
		"投诉", "退款", "坏了",
	},
	Inquiry: {
		"what", "when", "where", "how", "which", "who", "why", "is there", "can you tell",
		"什么", "哪里", "怎么", "多少", "吗",
	},
	Greeting: {
		"hello", "hi", "hey", "good morning", "good evening", "你好", "嗨", "早上好",
	},
}

// intentPriority 用于平分时取舍：询问订票仍算订票
var intentPriority = []Intent{Booking, Complaint, Inquiry, Greeting}

// sentimentPriority 同分情绪标签的取舍顺序
var sentimentPriority = []Label{Frustrated, Excited, Negative, Positive}

// Analyze 根据关键词与标点推断用户情绪与意图。
func Analyze(utterance string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(utterance))
	if normalized == "" {
		return Decision{Sentiment: Neutral, Intent: Other}
	}

	scores := make(map[Label]int)
	for label, keywords := range sentimentBuckets {
		for _, word := range keywords {
			if containsWord(normalized, word) {
				scores[label] += 3
			}
		}
	}

	if exclamations := strings.Count(utterance, "!") + strings.Count(utterance, "！"); exclamations > 0 {
		if scores[Frustrated] > 0 {
			scores[Frustrated] += exclamations * 2
		} else {
			scores[Excited] += exclamations * 2
		}
	}

	best, bestScore := Neutral, 0
	for _, label := range sentimentPriority {
		if scores[label] > bestScore {
			best, bestScore = label, scores[label]
		}
	}

	return Decision{Sentiment: best, Intent: DetectIntent(normalized), Score: bestScore}
}

// DetectIntent 返回文本中命中关键词且优先级最高的意图
func DetectIntent(text string) Intent {
	normalized := strings.ToLower(text)
	hits := make(map[Intent]int)
	for intent, keywords := range intentBuckets {
		for _, word := range keywords {
			if containsWord(normalized, word) {
				hits[intent]++
			}
		}
	}
	if strings.HasSuffix(strings.TrimSpace(normalized), "?") {
		hits[Inquiry]++
	}

	for _, intent := range intentPriority {
		if hits[intent] > 0 {
			return intent
		}
	}
	return Other
}

// ParseLabel 忽略大小写，把标签映射到固定集合
func ParseLabel(raw string) (Label, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "positive":
		return Positive, true
	case "negative":
		return Negative, true
	case "neutral":
		return Neutral, true
	case "frustrated":
		return Frustrated, true
	case "excited":
		return Excited, true
	default:
		return "", false
	}
}

// ParseIntent 忽略大小写，把意图映射到固定集合
func ParseIntent(raw string) (Intent, bool) {
	switch Intent(strings.ToLower(strings.TrimSpace(raw))) {
	case Booking:
		return Booking, true
	case Inquiry:
		return Inquiry, true
	case Complaint:
		return Complaint, true
	case Greeting:
		return Greeting, true
	case Other:
		return Other, true
	default:
		return "", false
	}
}

// containsWord 英文关键词按单词边界匹配，其余按子串匹配
func containsWord(text, word string) bool {
	word = strings.ToLower(word)
	if word == "" {
		return false
	}
	if !isASCII(word) {
		return strings.Contains(text, word)
	}

	for start := 0; ; {
		idx := strings.Index(text[start:], word)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(word)
		before := idx == 0 || !isWordByte(text[idx-1])
		after := end == len(text) || !isWordByte(text[end])
		if before && after {
			return true
		}
		start = idx + 1
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func isWordByte(b byte) bool {
	return b == '_' || b == '\'' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z')
}
