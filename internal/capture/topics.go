package capture

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// NamespacePlaceholder is replaced by the namespace in every topic pattern.
const NamespacePlaceholder = "{ns}"

// TopicSet is the ordered list of topic patterns recorded in every session,
// with optional glob patterns for topics to leave out.
type TopicSet struct {
	patterns []string
	exclude  []glob.Glob
}

// NewTopicSet compiles the exclusion globs. Globs use '/' as the separator,
// so "*" stays within one name segment and "**" spans segments.
func NewTopicSet(patterns, exclude []string) (TopicSet, error) {
	ts := TopicSet{patterns: append([]string(nil), patterns...)}
	for _, p := range exclude {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return TopicSet{}, fmt.Errorf("capture: invalid topic exclusion %q: %w", p, err)
		}
		ts.exclude = append(ts.exclude, g)
	}
	return ts, nil
}

// Expand substitutes namespace into every pattern in declared order and
// drops excluded topics. An empty namespace collapses the doubled slash so
// "/{ns}/odom" becomes "/odom".
func (ts TopicSet) Expand(namespace string) []string {
	topics := make([]string, 0, len(ts.patterns))
	for _, p := range ts.patterns {
		topic := strings.ReplaceAll(p, NamespacePlaceholder, namespace)
		if namespace == "" {
			topic = strings.ReplaceAll(topic, "//", "/")
		}
		if ts.excluded(topic) {
			continue
		}
		topics = append(topics, topic)
	}
	return topics
}

func (ts TopicSet) excluded(topic string) bool {
	for _, g := range ts.exclude {
		if g.Match(topic) {
			return true
		}
	}
	return false
}
