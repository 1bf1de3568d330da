package classify

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
)

// issueRule groups compiled patterns for a single issue category.
type issueRule struct {
	Label    string
	Patterns []*regexp.Regexp
	BaseConf float64
}

var issueRules = []issueRule{
	{Label: "pothole", BaseConf: 0.86, Patterns: compile(
		`(?i)\bpot\s?holes?\b`,
		`(?i)\b(crater|cavity|hole)s?\b.*\broad\b`,
	)},
	{Label: "broken streetlight", BaseConf: 0.84, Patterns: compile(
		`(?i)\bstreet\s?lights?\b`,
		`(?i)\b(lamp\s?post|street\s?lamp)s?\b`,
		`(?i)\blights?\b.*\b(not working|broken|off|dark)\b`,
	)},
	{Label: "damaged road", BaseConf: 0.8, Patterns: compile(
		`(?i)\broads?\b.*\b(damaged|broken|cracked|worn)\b`,
		`(?i)\b(damaged|broken|cracked)\b.*\broads?\b`,
	)},
	{Label: "water leakage", BaseConf: 0.85, Patterns: compile(
		`(?i)\bwater\b.*\bleak(age|ing|s)?\b`,
		`(?i)\b(pipe|pipeline|tap)s?\b.*\b(burst|leak(ing)?)\b`,
	)},
	{Label: "overflowing garbage", BaseConf: 0.85, Patterns: compile(
		`(?i)\b(garbage|trash|rubbish|waste|litter)\b`,
		`(?i)\b(dustbin|bin)s?\b.*\boverflow(ing)?\b`,
	)},
	{Label: "sewage issue", BaseConf: 0.84, Patterns: compile(
		`(?i)\bsew(age|er)\b`,
		`(?i)\bgutter\b.*\boverflow(ing)?\b`,
	)},
	{Label: "construction hazard", BaseConf: 0.78, Patterns: compile(
		`(?i)\bconstruction\b`,
		`(?i)\b(debris|scaffold(ing)?)\b`,
	)},
	{Label: "traffic signal not working", BaseConf: 0.84, Patterns: compile(
		`(?i)\btraffic\s+(signal|light)s?\b`,
		`(?i)\bsignals?\b.*\b(not working|broken|off)\b`,
	)},
	{Label: "illegal parking", BaseConf: 0.82, Patterns: compile(
		`(?i)\b(illegal(ly)?|wrong(ly)?)\s+park(ed|ing)\b`,
		`(?i)\bpark(ed|ing)\b.*\b(footpath|sidewalk|driveway)\b`,
	)},
	{Label: "blocked drain", BaseConf: 0.83, Patterns: compile(
		`(?i)\bdrains?\b.*\b(blocked|clogged|choked)\b`,
		`(?i)\b(blocked|clogged|choked)\b.*\bdrains?\b`,
		`(?i)\bwater\s?logging\b`,
	)},
	{Label: "electricity outage", BaseConf: 0.86, Patterns: compile(
		`(?i)\b(power|electricity|current)\b.*\b(cut|outage|failure|gone|off)\b`,
		`(?i)\b(blackout|power\s?cut|no electricity)\b`,
	)},
	{Label: "water shortage", BaseConf: 0.84, Patterns: compile(
		`(?i)\bno\s+water\b`,
		`(?i)\bwater\b.*\b(shortage|supply|scarcity)\b`,
	)},
	{Label: "gas leakage", BaseConf: 0.9, Patterns: compile(
		`(?i)\bgas\b.*\bleak(age|ing)?\b`,
		`(?i)\bsmell\s+of\s+gas\b`,
	)},
	{Label: "telephone line down", BaseConf: 0.8, Patterns: compile(
		`(?i)\b(telephone|phone|landline)\s+lines?\b`,
	)},
	{Label: "internet outage", BaseConf: 0.8, Patterns: compile(
		`(?i)\b(internet|broadband|wifi|network)\b.*\b(down|outage|not working)\b`,
	)},
	{Label: "air pollution", BaseConf: 0.82, Patterns: compile(
		`(?i)\b(smoke|smog|fumes|dust)\b`,
		`(?i)\bair\s+(pollution|quality)\b`,
		`(?i)\bburning\b.*\b(waste|garbage|plastic)\b`,
	)},
	{Label: "noise pollution", BaseConf: 0.82, Patterns: compile(
		`(?i)\b(noise|noisy|loud(speaker)?s?)\b`,
	)},
	{Label: "tree fallen", BaseConf: 0.85, Patterns: compile(
		`(?i)\btrees?\b.*\b(fallen|fell|uprooted|collapsed)\b`,
		`(?i)\bfallen\s+trees?\b`,
	)},
	{Label: "animal nuisance", BaseConf: 0.8, Patterns: compile(
		`(?i)\b(stray|dogs?|cattle|cows?|monkeys?)\b`,
	)},
	{Label: "mosquito breeding", BaseConf: 0.83, Patterns: compile(
		`(?i)\bmosquito(es)?\b`,
		`(?i)\b(dengue|malaria|stagnant water)\b`,
	)},
	{Label: "fire hazard", BaseConf: 0.88, Patterns: compile(
		`(?i)\bfire\b`,
		`(?i)\b(sparks?|short\s?circuit|exposed wires?)\b`,
	)},
	{Label: "accident spot", BaseConf: 0.87, Patterns: compile(
		`(?i)\baccidents?\b`,
		`(?i)\b(collision|crash(ed)?)\b`,
	)},
	{Label: "unsafe building", BaseConf: 0.84, Patterns: compile(
		`(?i)\bbuilding\b.*\b(unsafe|cracks?|collaps(e|ing)|dilapidated)\b`,
	)},
	{Label: "broken bridge", BaseConf: 0.86, Patterns: compile(
		`(?i)\bbridges?\b.*\b(broken|damaged|cracked|collaps(e|ed|ing))\b`,
		`(?i)\b(flyover|footbridge)\b`,
	)},
	{Label: "open manhole", BaseConf: 0.9, Patterns: compile(
		`(?i)\bman\s?holes?\b`,
	)},
	{Label: "public transport issue", BaseConf: 0.8, Patterns: compile(
		`(?i)\b(bus|buses|metro|train|tram)\b`,
	)},
	{Label: "healthcare issue", BaseConf: 0.8, Patterns: compile(
		`(?i)\b(hospital|clinic|doctor|ambulance|medicine)s?\b`,
	)},
	{Label: "education issue", BaseConf: 0.8, Patterns: compile(
		`(?i)\b(school|college|teacher|classroom)s?\b`,
	)},
	{Label: "government office complaint", BaseConf: 0.78, Patterns: compile(
		`(?i)\b(office|officials?|clerk|department)\b`,
		`(?i)\b(municipal|ward)\s+office\b`,
	)},
	{Label: "corruption", BaseConf: 0.88, Patterns: compile(
		`(?i)\b(bribe|bribery|corrupt(ion)?)\b`,
	)},
	{Label: "theft", BaseConf: 0.86, Patterns: compile(
		`(?i)\b(theft|stolen|robbery|robbed|burglary|snatch(ed|ing)?)\b`,
	)},
	{Label: "harassment", BaseConf: 0.86, Patterns: compile(
		`(?i)\b(harass(ed|ment|ing)?|stalk(ed|ing)?|eve\s?teasing)\b`,
	)},
}

// entityRule tags every match of Pattern with Tag.
type entityRule struct {
	Tag     string
	Pattern *regexp.Regexp
}

var entityRules = []entityRule{
	{Tag: "DATE", Pattern: regexp.MustCompile(`(?i)\b(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|(yesterday|today|tomorrow)|(last|this|next)\s+(week|month|night|monday|tuesday|wednesday|thursday|friday|saturday|sunday))\b`)},
	{Tag: "TIME", Pattern: regexp.MustCompile(`(?i)\b\d{1,2}(:\d{2})?\s?(am|pm)\b`)},
	{Tag: "PHONE", Pattern: regexp.MustCompile(`\+?\d[\d -]{8,}\d`)},
	{Tag: "ORG", Pattern: regexp.MustCompile(`\b(?:[A-Z][a-z]+\s)+(?:Municipal Corporation|Corporation|Department|Board|Authority|Police)\b`)},
	{Tag: "LOC", Pattern: regexp.MustCompile(`\b(?:[A-Z][a-z]+\s)+(?:Road|Street|Nagar|Avenue|Lane|Colony|Market|Park|Chowk|Marg|Bridge)\b`)},
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// Rules is a deterministic model-free backend for all three collaborators.
type Rules struct {
	taxonomy *Taxonomy
	rules    []issueRule
}

// NewRules creates a rules backend restricted to the labels of taxonomy.
func NewRules(taxonomy *Taxonomy) *Rules {
	var active []issueRule
	for _, r := range issueRules {
		if taxonomy.Contains(r.Label) {
			active = append(active, r)
		}
	}
	return &Rules{taxonomy: taxonomy, rules: active}
}

// Backend implements Named.
func (r *Rules) Backend() Backend { return BackendRules }

// ClassifySentiment scores the text against the polarity lexicon. The
// confidence grows with the margin between negative and positive hits.
func (r *Rules) ClassifySentiment(_ context.Context, text string) (Result, error) {
	neg, pos := polarityCounts(text)
	if neg == pos {
		conf := 0.6
		if neg > 0 {
			conf = 0.5
		}
		return Result{Label: "neutral", Confidence: conf}, nil
	}

	margin := math.Abs(float64(neg-pos)) / float64(neg+pos)
	conf := math.Min(0.99, 0.55+0.44*margin)
	conf = math.Round(conf*1000) / 1000

	label := "positive"
	if neg > pos {
		label = "negative"
	}
	return Result{Label: label, Confidence: conf}, nil
}

// ClassifyIssue picks the rule with the highest confidence. Each extra
// matching pattern adds 0.03, capped at 0.99. With no match the result is
// "other" at 0.5 when the taxonomy has it.
func (r *Rules) ClassifyIssue(_ context.Context, text string) (Result, error) {
	type match struct {
		label    string
		conf     float64
		hitCount int
	}
	var best *match

	for _, rule := range r.rules {
		hits := 0
		for _, pat := range rule.Patterns {
			if pat.MatchString(text) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		conf := math.Min(0.99, rule.BaseConf+float64(hits-1)*0.03)
		if best == nil || conf > best.conf || (conf == best.conf && hits > best.hitCount) {
			best = &match{label: rule.Label, conf: conf, hitCount: hits}
		}
	}

	if best == nil {
		if other := r.taxonomy.Canonical("other"); other != "" {
			return Result{Label: other, Confidence: 0.5}, nil
		}
		return Result{Label: r.taxonomy.Labels()[0], Confidence: 0}, nil
	}
	return Result{Label: r.taxonomy.Canonical(best.label), Confidence: math.Round(best.conf*100) / 100}, nil
}

// ExtractEntities returns regex entity matches ordered by position. Overlapping
// matches keep the earliest-starting, longest span.
func (r *Rules) ExtractEntities(_ context.Context, text string) ([]Entity, error) {
	type span struct {
		start, end int
		tag        string
	}
	var spans []span
	for _, rule := range entityRules {
		for _, loc := range rule.Pattern.FindAllStringIndex(text, -1) {
			spans = append(spans, span{start: loc[0], end: loc[1], tag: rule.Tag})
		}
	}

	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	entities := make([]Entity, 0, len(spans))
	lastEnd := -1
	for _, s := range spans {
		if s.start < lastEnd {
			continue
		}
		entities = append(entities, Entity{Token: strings.TrimSpace(text[s.start:s.end]), Tag: s.tag})
		lastEnd = s.end
	}
	return entities, nil
}
