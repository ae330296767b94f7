// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Issue IDs. Values start at 1 so the zero Id never names an issue.
const (
	ModuleNotFoundId Id = iota + 1
	ModuleAmbiguousId
	ManifestInvalidId
	HostVersionMismatchId
	CommandTableInvalidId
	KeyinNotMatchedId
	ScriptExecutionFailedId
	ConfigLoadFailedId
)

type (
	// Id identifies a catalog entry.
	Id int

	// MarkdownMsg is Markdown guidance shown to the user.
	MarkdownMsg string

	// HttpLink is a documentation or external reference URL.
	HttpLink string

	// Issue is a known failure class with rendered guidance.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
		extLinks []HttpLink
	}
)

var (
	render = glamour.Render

	moduleNotFoundIssue = &Issue{
		id: ModuleNotFoundId,
		mdMsg: `
# No module bundle found!

modhost needs a module bundle (a ` + "`.modpkg`" + ` file) to load.

## Things you can try:
- Point at a bundle explicitly:
~~~
$ modhost --module ./tools.modpkg list
~~~

- Or set ` + "`module_path`" + ` in your config file
- Build a bundle from a module directory:
~~~
$ modhost pack ./tools -o tools.modpkg
~~~`,
	}

	moduleAmbiguousIssue = &Issue{
		id: ModuleAmbiguousId,
		mdMsg: `
# More than one module bundle found!

The base directory contains several ` + "`.modpkg`" + ` files and no
` + "`module_path`" + ` was configured, so modhost cannot pick one.

## Things you can try:
- Pass ` + "`--module <path>`" + `
- Set ` + "`module_path`" + ` in your config file
- Move unused bundles out of the base directory`,
	}

	manifestInvalidIssue = &Issue{
		id: ManifestInvalidId,
		mdMsg: `
# Module manifest is invalid!

The bundle's ` + "`module.cue`" + ` failed schema validation or declares
types that break a platform contract.

## Things you can try:
- Check the field path reported in the error
- Every ` + "`Command`" + ` type needs an ` + "`Execute`" + ` method
- Every ` + "`ModHost.Addin`" + ` subtype needs an ` + "`Init`" + ` method
- Inspect the manifest:
~~~
$ modhost inspect --raw
~~~`,
		docLinks: []HttpLink{"https://cuelang.org/docs/"},
	}

	hostVersionMismatchIssue = &Issue{
		id: HostVersionMismatchId,
		mdMsg: `
# Module requires a different host version!

The bundle's ` + "`host_version`" + ` constraint does not accept this modhost build.

## Things you can try:
- Check ` + "`modhost --version`" + `
- Rebuild the module with a wider constraint such as ` + "`>=0.1.0`",
		extLinks: []HttpLink{"https://github.com/Masterminds/semver#checking-version-constraints"},
	}

	commandTableInvalidIssue = &Issue{
		id: CommandTableInvalidId,
		mdMsg: `
# Command table could not be read!

A command table resource inside the bundle is not well-formed XML.

## Things you can try:
- Validate the XML resource under ` + "`resources/`" + `
- Check the namespace matches ` + "`command_table.namespace`" + ` in config`,
	}

	keyinNotMatchedIssue = &Issue{
		id: KeyinNotMatchedId,
		mdMsg: `
# No command matched!

Nothing in the loaded module answers to that key-in.

## Things you can try:
- List what the module provides:
~~~
$ modhost list
~~~

- Key-ins match case-insensitively on a whole-word prefix`,
	}

	scriptExecutionFailedIssue = &Issue{
		id: ScriptExecutionFailedId,
		mdMsg: `
# A command failed while running!

One or more matched commands returned an error. Other matches still ran.

## Things you can try:
- Re-run with ` + "`--verbose`" + ` to see the error chain
- Check the method script inside the module bundle`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

## Things you can try:
- Check CUE syntax in your config file
- Print the effective configuration:
~~~
$ modhost config show
~~~`,
	}

	issues = map[Id]*Issue{
		moduleNotFoundIssue.Id():        moduleNotFoundIssue,
		moduleAmbiguousIssue.Id():       moduleAmbiguousIssue,
		manifestInvalidIssue.Id():       manifestInvalidIssue,
		hostVersionMismatchIssue.Id():   hostVersionMismatchIssue,
		commandTableInvalidIssue.Id():   commandTableInvalidIssue,
		keyinNotMatchedIssue.Id():       keyinNotMatchedIssue,
		scriptExecutionFailedIssue.Id(): scriptExecutionFailedIssue,
		configLoadFailedIssue.Id():      configLoadFailedIssue,
	}
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the issue's Markdown with glamour using stylePath
// ("dark", "light", "notty", ...).
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also:\n")
		for _, link := range i.docLinks {
			md.WriteString("\n- " + string(link))
		}
		for _, link := range i.extLinks {
			md.WriteString("\n- " + string(link))
		}
	}
	return render(md.String(), stylePath)
}

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	out := slices.Collect(maps.Values(issues))
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return out
}

// Get returns the issue for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
