package rta

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Rule ids are part of the audit/event contract.
const (
	RuleCredentialLeak       = "rta:no-credential-leak"
	RuleDestructiveOverwrite = "rta:no-destructive-overwrite"
	RuleUnboundedRecursion   = "rta:no-unbounded-recursion"
	RuleCostExplosion        = "rta:no-cost-explosion"
	RuleDataExfiltration     = "rta:no-data-exfiltration"
)

const defaultCostBudgetUSD = 10.0

var (
	credentialKeyRe = regexp.MustCompile(`(?i)api[_-]?key|token|secret|password|credential|passwd|private[_-]?key`)
	outputPathKeyRe = regexp.MustCompile(`(?i)^(output|out|outfile|destination|dest|target|file_path|path|write_path|save_path)$`)

	credentialDumpRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(echo|cat|head|tail|less|more|bat)\b.*(\.env\b|credentials\.json|\.netrc|\.npmrc|id_rsa|id_ed25519|\.pem)`),
		regexp.MustCompile(`(?i)\b(printenv|env)\b.*(api[_-]?key|token|secret|password|credential)`),
		regexp.MustCompile(`(?i)\becho\b.*\$\{?[A-Z_]*(API_KEY|TOKEN|SECRET|PASSWORD|CREDENTIAL)`),
	}

	systemPathPrefixes = []string{"/etc/", "/usr/", "/System/", "/bin/", "/sbin/", "/var/", "/boot/", "/lib/", "/lib64/"}
	gitInternalParts   = []string{".git/config", ".git/HEAD", ".git/hooks/"}

	overwriteToolRe = regexp.MustCompile(`(?i)write|edit|create|save|overwrite|patch`)
	fullOverwriteRe = regexp.MustCompile(`(?i)write|create|save|overwrite`)

	spawnToolRe = regexp.MustCompile(`(?i)spawn|sub_?agent`)

	exfilRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)curl\b.*(\s-d\b|\s-F\b|--data\b|--upload-file\b)`),
		regexp.MustCompile(`(?i)\|\s*(curl|wget|nc)\b`),
		regexp.MustCompile(`(?i)wget\b.*(--post-data|--post-file)`),
		regexp.MustCompile(`(?i)\b(node|python3?)\b\s+-e\b.*(fetch\(|requests\.post|urllib)`),
	}

	urlRe = regexp.MustCompile(`https?://[^\s"'` + "`" + `]+`)

	localHosts = map[string]bool{
		"localhost":            true,
		"127.0.0.1":            true,
		"0.0.0.0":              true,
		"::1":                  true,
		"host.docker.internal": true,
	}
)

func allow(ruleID string) Verdict { return Verdict{Allowed: true, RuleID: ruleID} }

func deny(ruleID, reason, alternative string) Verdict {
	return Verdict{Allowed: false, RuleID: ruleID, Reason: reason, Alternative: alternative}
}

// extractCommand pulls a shell command string out of tool args.
func extractCommand(args map[string]interface{}) string {
	for _, key := range []string{"command", "cmd", "script"} {
		if v, ok := args[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

// ── R1: credential leak ──

// CredentialLeakRule blocks writing credential material to output paths and
// shell commands that dump credential files or variables.
type CredentialLeakRule struct{}

func (r *CredentialLeakRule) ID() string { return RuleCredentialLeak }

func (r *CredentialLeakRule) Check(ctx CheckContext) Verdict {
	for key, val := range ctx.Args {
		if !outputPathKeyRe.MatchString(key) {
			continue
		}
		strVal, _ := val.(string)
		if credentialKeyRe.MatchString(key) || (strVal != "" && credentialKeyRe.MatchString(strVal)) {
			return deny(RuleCredentialLeak,
				fmt.Sprintf("writing %q would expose credential data to an output path", key),
				"Read the secret through a secure secrets API or environment injection instead of writing it to a file.")
		}
	}

	if cmd := extractCommand(ctx.Args); cmd != "" {
		for _, re := range credentialDumpRes {
			if re.MatchString(cmd) {
				return deny(RuleCredentialLeak,
					"the shell command would expose credential data (dotenv, key files or credential variables)",
					"Use the platform's secure APIs for secrets; never print credential files or variables.")
			}
		}
	}

	return allow(RuleCredentialLeak)
}

// ── R2: destructive overwrite ──

// DestructiveOverwriteRule blocks writes into system paths, git internals and
// lockfile/dotenv full overwrites.
type DestructiveOverwriteRule struct{}

func (r *DestructiveOverwriteRule) ID() string { return RuleDestructiveOverwrite }

func (r *DestructiveOverwriteRule) Check(ctx CheckContext) Verdict {
	if !overwriteToolRe.MatchString(ctx.ToolName) {
		return allow(RuleDestructiveOverwrite)
	}

	target := ""
	for _, key := range []string{"path", "file_path", "filename", "file", "target", "dest", "destination", "output"} {
		if v, ok := ctx.Args[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				target = s
				break
			}
		}
	}
	if target == "" {
		return allow(RuleDestructiveOverwrite)
	}

	for _, prefix := range systemPathPrefixes {
		if strings.HasPrefix(target, prefix) {
			return deny(RuleDestructiveOverwrite,
				fmt.Sprintf("writing to system path %q could damage the host", target),
				"Work inside the project working directory; system files need explicit human action.")
		}
	}
	for _, part := range gitInternalParts {
		if strings.Contains(target, part) {
			return deny(RuleDestructiveOverwrite,
				fmt.Sprintf("modifying git internals (%q) can corrupt the repository", target),
				"Use git commands to change repository configuration instead of editing .git directly.")
		}
	}

	if fullOverwriteRe.MatchString(ctx.ToolName) {
		base := target
		if idx := strings.LastIndex(base, "/"); idx >= 0 {
			base = base[idx+1:]
		}
		if base == "package-lock.json" || base == ".env" {
			return deny(RuleDestructiveOverwrite,
				fmt.Sprintf("full overwrite of %q destroys state that is expensive or impossible to reconstruct", base),
				"Edit the file surgically, or regenerate it with its owning tool (npm install, dotenv template).")
		}
	}

	return allow(RuleDestructiveOverwrite)
}

// ── R3: unbounded recursion ──

// UnboundedRecursionRule caps sub-agent spawn depth and breaks purpose loops.
type UnboundedRecursionRule struct{}

func (r *UnboundedRecursionRule) ID() string { return RuleUnboundedRecursion }

const maxAgentDepth = 10
const purposeRepeatLimit = 3

func (r *UnboundedRecursionRule) Check(ctx CheckContext) Verdict {
	if !spawnToolRe.MatchString(ctx.ToolName) {
		return allow(RuleUnboundedRecursion)
	}

	if ctx.AgentDepth >= maxAgentDepth {
		return deny(RuleUnboundedRecursion,
			fmt.Sprintf("agent spawn depth %d reached the hard ceiling of %d", ctx.AgentDepth, maxAgentDepth),
			"Complete the work in the current agent, or return a partial result for the parent to continue.")
	}

	purpose := strings.ToLower(strings.TrimSpace(ctx.AgentPurpose))
	if purpose != "" && len(ctx.RecentSpawnPurposes) >= purposeRepeatLimit {
		consecutive := 0
		for i := len(ctx.RecentSpawnPurposes) - 1; i >= 0; i-- {
			if strings.ToLower(strings.TrimSpace(ctx.RecentSpawnPurposes[i])) == purpose {
				consecutive++
			} else {
				break
			}
		}
		if consecutive >= purposeRepeatLimit {
			return deny(RuleUnboundedRecursion,
				fmt.Sprintf("spawn purpose %q repeated %d times in a row — this is a recursion loop", ctx.AgentPurpose, consecutive),
				"Change the approach: the same delegation has not worked; do the task directly or split it differently.")
		}
	}

	return allow(RuleUnboundedRecursion)
}

// ── R4: cost explosion ──

// CostExplosionRule enforces the per-session cost budget.
type CostExplosionRule struct{}

func (r *CostExplosionRule) ID() string { return RuleCostExplosion }

func (r *CostExplosionRule) Check(ctx CheckContext) Verdict {
	budget := ctx.CostBudget
	if budget <= 0 {
		budget = defaultCostBudgetUSD
	}
	if ctx.TotalCostSoFar+ctx.EstimatedCost > budget {
		return deny(RuleCostExplosion,
			fmt.Sprintf("estimated cost $%.2f would push the session past its $%.2f budget (spent $%.2f)",
				ctx.EstimatedCost, budget, ctx.TotalCostSoFar),
			"Ask the user to raise the budget, or scope the task down before continuing.")
	}
	return allow(RuleCostExplosion)
}

// ── R5: data exfiltration ──

// DataExfiltrationRule blocks shell commands that upload data to hosts outside
// the allow-list.
type DataExfiltrationRule struct{}

func (r *DataExfiltrationRule) ID() string { return RuleDataExfiltration }

func (r *DataExfiltrationRule) Check(ctx CheckContext) Verdict {
	cmd := extractCommand(ctx.Args)
	if cmd == "" {
		return allow(RuleDataExfiltration)
	}

	uploading := false
	for _, re := range exfilRes {
		if re.MatchString(cmd) {
			uploading = true
			break
		}
	}
	if !uploading {
		return allow(RuleDataExfiltration)
	}

	// Every URL in the command must resolve to an allowed host.
	for _, raw := range urlRe.FindAllString(cmd, -1) {
		host := hostOf(raw)
		if host == "" || !hostAllowed(host, ctx.AllowedDomains) {
			return deny(RuleDataExfiltration,
				fmt.Sprintf("the command uploads data to %q, which is not localhost or an allowed domain", host),
				"Send data only to localhost or to a domain on the configured allow-list.")
		}
	}
	if len(urlRe.FindAllString(cmd, -1)) == 0 {
		// Upload shape with no parseable URL (e.g. piping into nc host port).
		return deny(RuleDataExfiltration,
			"the command pipes data into an upload tool with no verifiable destination",
			"Send data only to localhost or to a domain on the configured allow-list.")
	}

	return allow(RuleDataExfiltration)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func hostAllowed(host string, allowed []string) bool {
	if localHosts[host] {
		return true
	}
	for _, d := range allowed {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
