package metadata

import (
	"net/url"
	"regexp"
	"strings"
)

var cidRe = regexp.MustCompile(`((?:Qm[1-9A-HJ-NP-Za-km-z]{44}|bafy[a-z2-7]{50,})(?:/.*)?$)`)

func IsUrl(uri string) bool {
	u, err := url.Parse(uri)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// IpfsPath returns the "<cid>[/path]" part of an ipfs:// uri or a gateway url, and false
// for anything that is not content addressed.
func IpfsPath(uri string) (string, bool) {
	if strings.HasPrefix(uri, "ipfs://") {
		path := strings.TrimPrefix(strings.TrimPrefix(uri, "ipfs://"), "ipfs/")
		return path, path != ""
	}

	parts := cidRe.FindStringSubmatch(uri)
	if len(parts) == 2 {
		return parts[1], true
	}

	return "", false
}

// candidates lists the urls to try for uri, in order. Content addressed documents are
// tried on every configured gateway.
func candidates(uri string, hosts []string) []string {
	path, ok := IpfsPath(uri)
	if !ok || len(hosts) == 0 {
		if IsUrl(uri) {
			return []string{uri}
		}
		return nil
	}

	urls := make([]string, 0, len(hosts))
	for _, host := range hosts {
		urls = append(urls, strings.TrimRight(host, "/")+"/ipfs/"+path)
	}

	return urls
}
