package optimization

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"golang.org/x/text/language"

	"github.com/aihub/agentdesk/internal/domain"
	"github.com/aihub/agentdesk/internal/i18n"
)

type catalogEntry struct {
	id          string
	title       i18n.Text
	description i18n.Text
	category    domain.Category
	impact      domain.Impact
	difficulty  domain.Difficulty
	estimate    string
	steps       []i18n.Text
}

var catalog = []catalogEntry{
	{
		id:          "compress-responses",
		title:       i18n.Text{EN: "Enable response compression", ZH: "启用响应压缩"},
		description: i18n.Text{EN: "Compress JSON and static responses with gzip or brotli.", ZH: "使用 gzip 或 brotli 压缩 JSON 与静态资源响应。"},
		category:    domain.CategoryNetwork,
		impact:      domain.ImpactHigh,
		difficulty:  domain.DifficultyEasy,
		estimate:    "10-20%",
		steps: []i18n.Text{
			{EN: "Enable compression in the reverse proxy", ZH: "在反向代理中开启压缩"},
			{EN: "Verify Content-Encoding on API responses", ZH: "检查 API 响应的 Content-Encoding"},
		},
	},
	{
		id:          "cache-agent-config",
		title:       i18n.Text{EN: "Cache agent configuration", ZH: "缓存智能体配置"},
		description: i18n.Text{EN: "Serve the agent list from memory instead of reloading it for every chat.", ZH: "从内存提供智能体列表，避免每次对话重新加载。"},
		category:    domain.CategoryBackend,
		impact:      domain.ImpactHigh,
		difficulty:  domain.DifficultyEasy,
		estimate:    "15-25%",
	},
	{
		id:          "stream-completions",
		title:       i18n.Text{EN: "Stream chat completions", ZH: "流式返回对话结果"},
		description: i18n.Text{EN: "Render answer tokens as they arrive instead of waiting for the full reply.", ZH: "逐步渲染回答内容，而不是等待完整回复。"},
		category:    domain.CategoryNetwork,
		impact:      domain.ImpactHigh,
		difficulty:  domain.DifficultyMedium,
		estimate:    "20-40%",
		steps: []i18n.Text{
			{EN: "Set stream=true on chat requests", ZH: "在对话请求中设置 stream=true"},
			{EN: "Flush server-sent events through the proxy", ZH: "通过代理实时转发 SSE 事件"},
		},
	},
	{
		id:          "split-admin-bundle",
		title:       i18n.Text{EN: "Code-split the admin dashboard", ZH: "拆分管理后台代码包"},
		description: i18n.Text{EN: "Load dashboard charts only when the admin pages are opened.", ZH: "仅在打开管理页面时加载图表组件。"},
		category:    domain.CategoryFrontend,
		impact:      domain.ImpactHigh,
		difficulty:  domain.DifficultyMedium,
		estimate:    "10-30%",
	},
	{
		id:          "lazy-history",
		title:       i18n.Text{EN: "Lazy-load chat history", ZH: "按需加载聊天记录"},
		description: i18n.Text{EN: "Fetch messages for a session only when it is opened.", ZH: "仅在打开会话时获取其消息。"},
		category:    domain.CategoryFrontend,
		impact:      domain.ImpactMedium,
		difficulty:  domain.DifficultyEasy,
		estimate:    "5-15%",
	},
	{
		id:          "index-session-search",
		title:       i18n.Text{EN: "Index chat sessions for search", ZH: "为会话搜索建立索引"},
		description: i18n.Text{EN: "Use a full-text index instead of scanning every session.", ZH: "使用全文索引代替逐条扫描会话。"},
		category:    domain.CategoryBackend,
		impact:      domain.ImpactMedium,
		difficulty:  domain.DifficultyMedium,
		estimate:    "10-20%",
	},
	{
		id:          "keepalive-upstream",
		title:       i18n.Text{EN: "Reuse upstream connections", ZH: "复用上游连接"},
		description: i18n.Text{EN: "Keep HTTP connections to FastGPT alive between requests.", ZH: "在请求之间保持与 FastGPT 的 HTTP 连接。"},
		category:    domain.CategoryNetwork,
		impact:      domain.ImpactMedium,
		difficulty:  domain.DifficultyEasy,
		estimate:    "5-10%",
	},
	{
		id:          "optimize-uploads",
		title:       i18n.Text{EN: "Downscale images on upload", ZH: "上传时压缩图片"},
		description: i18n.Text{EN: "Resize large images before sending them to the model.", ZH: "在发送给模型前缩小大图。"},
		category:    domain.CategoryFrontend,
		impact:      domain.ImpactMedium,
		difficulty:  domain.DifficultyHard,
		estimate:    "10-25%",
	},
	{
		id:          "memoize-rendering",
		title:       i18n.Text{EN: "Memoize message rendering", ZH: "缓存消息渲染结果"},
		description: i18n.Text{EN: "Avoid re-rendering unchanged markdown messages.", ZH: "避免重复渲染未变化的 Markdown 消息。"},
		category:    domain.CategoryCode,
		impact:      domain.ImpactMedium,
		difficulty:  domain.DifficultyMedium,
		estimate:    "5-10%",
	},
	{
		id:          "prune-dependencies",
		title:       i18n.Text{EN: "Remove unused dependencies", ZH: "移除未使用的依赖"},
		description: i18n.Text{EN: "Drop packages that are no longer imported.", ZH: "删除不再引用的依赖包。"},
		category:    domain.CategoryCode,
		impact:      domain.ImpactLow,
		difficulty:  domain.DifficultyEasy,
		estimate:    "2-5%",
	},
}

// DefaultCatalog returns the built-in suggestions rendered for lang.
func DefaultCatalog(lang language.Tag) []domain.Optimization {
	out := make([]domain.Optimization, 0, len(catalog))
	for _, e := range catalog {
		o := domain.Optimization{
			ID:                   e.id,
			Title:                e.title.In(lang),
			Description:          e.description.In(lang),
			Category:             e.category,
			Impact:               e.impact,
			Difficulty:           e.difficulty,
			EstimatedImprovement: e.estimate,
		}
		for _, s := range e.steps {
			o.Implementation = append(o.Implementation, s.In(lang))
		}
		out = append(out, o)
	}
	return out
}

// Thresholds used when deriving suggestions from live metrics.
const (
	errorRateWarn   = 0.05
	errorRateHigh   = 0.20
	cacheRatioFloor = 0.5

	CacheHitMetric  = "cache.hit"
	CacheMissMetric = "cache.miss"
)

// SuggestFromMetrics derives suggestions from live metric statistics: metrics
// whose p95 exceeds their budget, metrics with a high error rate, and a low
// cache hit ratio. Output is ordered by metric name.
func SuggestFromMetrics(stats map[string]domain.MetricStats, budgets map[string]float64, lang language.Tag) []domain.Optimization {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	slices.Sort(names)

	out := []domain.Optimization{}
	for _, name := range names {
		s := stats[name]
		if s.Count == 0 {
			continue
		}
		if budget := budgets[name]; budget > 0 && s.P95 > budget {
			impact := domain.ImpactMedium
			if s.P95 > 2*budget {
				impact = domain.ImpactHigh
			}
			over := (s.P95 - budget) / s.P95 * 100
			out = append(out, domain.Optimization{
				ID: "slow-" + name,
				Title: i18n.Text{
					EN: fmt.Sprintf("Reduce %s latency", name),
					ZH: fmt.Sprintf("降低 %s 延迟", name),
				}.In(lang),
				Description: i18n.Text{
					EN: fmt.Sprintf("p95 is %.0fms against a %.0fms budget.", s.P95, budget),
					ZH: fmt.Sprintf("p95 为 %.0fms，预算为 %.0fms。", s.P95, budget),
				}.In(lang),
				Category:             CategoryFor(name),
				Impact:               impact,
				Difficulty:           domain.DifficultyMedium,
				EstimatedImprovement: fmt.Sprintf("%d-%d%%", int(math.Round(over/2)), int(math.Round(over))),
			})
		}
		if rate := s.ErrorRate(); rate > errorRateWarn {
			impact := domain.ImpactMedium
			if rate > errorRateHigh {
				impact = domain.ImpactHigh
			}
			out = append(out, domain.Optimization{
				ID: "errors-" + name,
				Title: i18n.Text{
					EN: fmt.Sprintf("Reduce %s failures", name),
					ZH: fmt.Sprintf("减少 %s 失败", name),
				}.In(lang),
				Description: i18n.Text{
					EN: fmt.Sprintf("%.1f%% of samples failed; add retries or fix the upstream.", rate*100),
					ZH: fmt.Sprintf("%.1f%% 的请求失败，请增加重试或修复上游。", rate*100),
				}.In(lang),
				Category:             CategoryFor(name),
				Impact:               impact,
				Difficulty:           domain.DifficultyEasy,
				EstimatedImprovement: "5-15%",
			})
		}
	}

	hits, misses := stats[CacheHitMetric].Count, stats[CacheMissMetric].Count
	if total := hits + misses; total > 0 {
		if ratio := float64(hits) / float64(total); ratio < cacheRatioFloor {
			out = append(out, domain.Optimization{
				ID: "cache-ratio",
				Title: i18n.Text{
					EN: "Improve cache hit ratio",
					ZH: "提高缓存命中率",
				}.In(lang),
				Description: i18n.Text{
					EN: fmt.Sprintf("Only %.0f%% of lookups hit the cache.", ratio*100),
					ZH: fmt.Sprintf("仅有 %.0f%% 的查询命中缓存。", ratio*100),
				}.In(lang),
				Category:             domain.CategoryBackend,
				Impact:               domain.ImpactMedium,
				Difficulty:           domain.DifficultyEasy,
				EstimatedImprovement: "10-20%",
			})
		}
	}
	return out
}

// CategoryFor maps a metric name to the layer it measures by prefix. Client
// metrics with an unknown prefix count as frontend.
func CategoryFor(metric string) domain.Category {
	metric, client := strings.CutPrefix(metric, domain.BrowserMetricPrefix)
	prefix, _, _ := strings.Cut(metric, ".")
	switch prefix {
	case "page", "render", "ui", "frontend":
		return domain.CategoryFrontend
	case "http", "gateway", "store", "db", "cache", "backend":
		return domain.CategoryBackend
	case "proxy", "fastgpt", "upstream", "network":
		return domain.CategoryNetwork
	default:
		if client {
			return domain.CategoryFrontend
		}
		return domain.CategoryCode
	}
}
