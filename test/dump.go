package test

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// Rev describes one revision for Page.
type Rev struct {
	ID        int64
	Timestamp string
	Username  string
	UserID    int64
	IP        string
	Comment   string
	Text      string
}

func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// Page renders a <page> element of a history dump.
func Page(title string, revs ...Rev) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "  <page>\n    <title>%s</title>\n    <ns>0</ns>\n    <id>1</id>\n", escape(title))
	for _, r := range revs {
		sb.WriteString("    <revision>\n")
		fmt.Fprintf(&sb, "      <id>%d</id>\n      <timestamp>%s</timestamp>\n", r.ID, r.Timestamp)
		if r.IP != "" {
			fmt.Fprintf(&sb, "      <contributor>\n        <ip>%s</ip>\n      </contributor>\n", escape(r.IP))
		} else {
			fmt.Fprintf(&sb, "      <contributor>\n        <username>%s</username>\n        <id>%d</id>\n      </contributor>\n", escape(r.Username), r.UserID)
		}
		if r.Comment != "" {
			fmt.Fprintf(&sb, "      <comment>%s</comment>\n", escape(r.Comment))
		}
		sb.WriteString("      <model>wikibase-item</model>\n      <format>application/json</format>\n")
		fmt.Fprintf(&sb, "      <text bytes=\"%d\" xml:space=\"preserve\">%s</text>\n", len(r.Text), escape(r.Text))
		sb.WriteString("    </revision>\n")
	}
	sb.WriteString("  </page>\n")
	return sb.String()
}

// Dump wraps pages in a <mediawiki> root element with the export namespace.
func Dump(pages ...string) string {
	return `<mediawiki xmlns="http://www.mediawiki.org/xml/export-0.11/" version="0.11" xml:lang="en">
  <siteinfo>
    <sitename>Wikidata</sitename>
  </siteinfo>
` + strings.Join(pages, "") + "</mediawiki>\n"
}

// Entity renders an entity document with an English label and the given
// claims, as produced by StringClaim and friends.
func Entity(id, label string, claims ...string) string {
	labels := "[]"
	if label != "" {
		labels = fmt.Sprintf(`{"en":{"language":"en","value":%q}}`, label)
	}
	byProp := make(map[string][]string)
	var order []string
	for _, c := range claims {
		pid := c[:strings.Index(c, "|")]
		if _, ok := byProp[pid]; !ok {
			order = append(order, pid)
		}
		byProp[pid] = append(byProp[pid], c[len(pid)+1:])
	}
	parts := make([]string, 0, len(order))
	for _, pid := range order {
		parts = append(parts, fmt.Sprintf("%q:[%s]", pid, strings.Join(byProp[pid], ",")))
	}
	cl := "[]"
	if len(parts) > 0 {
		cl = "{" + strings.Join(parts, ",") + "}"
	}
	return fmt.Sprintf(`{"type":"item","id":%q,"labels":%s,"descriptions":[],"claims":%s}`, id, labels, cl)
}

// StringClaim renders a string statement for Entity.
func StringClaim(pid, id, hash, value string) string {
	return fmt.Sprintf(`%s|{"mainsnak":{"snaktype":"value","property":%q,"hash":%q,"datavalue":{"value":%q,"type":"string"}},"type":"statement","id":%q,"rank":"normal"}`,
		pid, pid, hash, value, id)
}

// ItemClaim renders an item reference statement for Entity.
func ItemClaim(pid, id, hash, item string) string {
	return fmt.Sprintf(`%s|{"mainsnak":{"snaktype":"value","property":%q,"hash":%q,"datavalue":{"value":{"entity-type":"item","id":%q},"type":"wikibase-entityid"}},"type":"statement","id":%q,"rank":"normal"}`,
		pid, pid, hash, item, id)
}

// GlobeClaim renders a coordinate statement for Entity.
func GlobeClaim(pid, id, hash string, lat, lon float64) string {
	return fmt.Sprintf(`%s|{"mainsnak":{"snaktype":"value","property":%q,"hash":%q,"datavalue":{"value":{"latitude":%v,"longitude":%v,"precision":0.01,"globe":"http://www.wikidata.org/entity/Q2"},"type":"globecoordinate"}},"type":"statement","id":%q,"rank":"normal"}`,
		pid, pid, hash, lat, lon, id)
}
