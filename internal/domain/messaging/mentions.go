package messaging

import (
	"regexp"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
)

// mentionRe matches "@name" and "@name@<project-id>" tokens. Names follow
// the channel-name grammar; project ids are 32 hex chars.
var mentionRe = regexp.MustCompile(`@([a-z0-9][a-z0-9_-]{0,63})(?:@([0-9a-f]{32}))?`)

// ExtractMentions returns the distinct agent references mentioned in
// content, in order of first appearance.
func ExtractMentions(content string) []identity.AgentRef {
	matches := mentionRe.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[identity.AgentRef]bool, len(matches))
	var refs []identity.AgentRef
	for _, m := range matches {
		ref := identity.AgentRef{Name: m[1], ProjectID: m[2]}
		if seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs
}
