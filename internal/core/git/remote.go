package git

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// GetRemoteConfig returns the remote of the repository containing dir,
// preferring origin. It returns nil when no remote is configured.
func (o *Operations) GetRemoteConfig(ctx context.Context, dir string) (*RemoteConfig, error) {
	o.track("remote-config", "dir", dir)
	repo, err := open(dir)
	if err != nil {
		return nil, err
	}

	remotes, err := repo.Remotes()
	if err != nil {
		return nil, fmt.Errorf("failed to list remotes: %w", err)
	}
	if len(remotes) == 0 {
		return nil, nil
	}

	sort.Slice(remotes, func(i, j int) bool {
		return remoteRank(remotes[i]) < remoteRank(remotes[j])
	})
	cfg := remotes[0].Config()
	if len(cfg.URLs) == 0 {
		return nil, nil
	}
	return parseRemote(cfg.Name, cfg.URLs[0]), nil
}

func remoteRank(r *gogit.Remote) string {
	if r.Config().Name == "origin" {
		return ""
	}
	return r.Config().Name
}

func parseRemote(name, url string) *RemoteConfig {
	rc := &RemoteConfig{Name: name, URL: url}
	ep, err := transport.NewEndpoint(url)
	if err != nil {
		return rc
	}
	rc.Protocol = ep.Protocol
	rc.Host = ep.Host

	path := strings.TrimSuffix(strings.Trim(ep.Path, "/"), ".git")
	if owner, repo, ok := strings.Cut(path, "/"); ok && !strings.Contains(repo, "/") {
		rc.Owner, rc.Repo = owner, repo
	} else if idx := strings.LastIndex(path, "/"); idx >= 0 {
		rc.Owner, rc.Repo = path[:idx], path[idx+1:]
	} else {
		rc.Repo = path
	}
	return rc
}

// GetCredentials asks the configured credential helper for url. It returns
// nil when the remote is not http based or no helper answers.
func (o *Operations) GetCredentials(ctx context.Context, dir, url string) (*Credentials, error) {
	o.track("credentials", "dir", dir)
	ep, err := transport.NewEndpoint(url)
	if err != nil || (ep.Protocol != "http" && ep.Protocol != "https") {
		return nil, nil
	}

	input := fmt.Sprintf("protocol=%s\nhost=%s\npath=%s\n\n", ep.Protocol, ep.Host, strings.TrimPrefix(ep.Path, "/"))
	out, err := o.runRaw(ctx, dir, []byte(input), "-c", "credential.interactive=false", "credential", "fill")
	if err != nil {
		var gerr *GitError
		if errors.As(err, &gerr) {
			o.log.Debug("no credentials available", "host", ep.Host)
			return nil, nil
		}
		return nil, err
	}

	creds := &Credentials{}
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "username":
			creds.Username = value
		case "password":
			creds.Password = value
		}
	}
	if creds.Username == "" && creds.Password == "" {
		return nil, nil
	}
	return creds, nil
}
