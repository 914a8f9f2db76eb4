// Copyright The Authly Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package document

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/zeebo/blake3"

	"github.com/authly-sh/authly/pkg/apierror"
	"github.com/authly-sh/authly/pkg/crypto"
	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/directory"
	"github.com/authly-sh/authly/pkg/id"
	"github.com/authly-sh/authly/pkg/policy/code"
	"github.com/authly-sh/authly/pkg/policy/lang"
)

// Compiled is a document's translation into rows, ready to replace a
// directory's previous snapshot. InsertStatements alone is not yet a valid
// replacement: Apply prepends the delete statements that clear the
// directory's previous rows (built from DirID/DirKey, which Compile itself
// never queries the store for).
type Compiled struct {
	DirID      id.ID
	DirKey     directory.DirKey
	ContentSum [32]byte
	// GroupEIDs is every group/domain id this document defines. Groups and
	// domains have no identity row of their own (the schema carries none),
	// so their ent_attr rows can't be found through a persona/svc dir_key
	// join the way a persona's or service's can; Apply deletes stale
	// ent_attr rows for these ids directly before the insert statements run.
	GroupEIDs        []id.ID
	InsertStatements []db.Statement
}

type compiledProperty struct {
	id    id.ID
	kind  directory.PropertyKind
	label string
}

type compiledAttribute struct {
	id     id.ID
	propID id.ID
	label  string
}

type compiledEntityAttr struct {
	eid    id.ID
	attrID id.ID
}

// compiler accumulates a document's compiled rows as its sections are
// walked, building the Namespace alongside so later sections (policies,
// policy bindings) can resolve labels earlier sections defined.
type compiler struct {
	dirID  id.ID
	dirKey directory.DirKey
	deks   *crypto.DecryptedDeks
	ns     *lang.Namespace

	properties  []compiledProperty
	attributes  []compiledAttribute
	personas    []directory.Persona
	services    []directory.Service
	k8sAccounts []struct{ eid id.ID; namespace, account string }
	entAttrs    []compiledEntityAttr
	idents      []struct {
		obj   id.ID
		prop  id.BuiltinProp
		ident crypto.Ident
	}
	passwords []struct {
		eid  id.ID
		hash string
	}
	policies       []directory.Policy
	policiesByName map[string]id.ID
	bindings       []directory.PolicyBinding
	groupEIDs      []id.ID
}

// Compile parses and compiles source into a replacement row set for dirID,
// whose local DirKey the caller has already resolved (see Apply). Password
// hashing (Argon2id) fans out across goroutines, since it is the one
// CPU-heavy step and the rest of compilation is pure label resolution.
func Compile(ctx context.Context, dirID id.ID, dirKey directory.DirKey, deks *crypto.DecryptedDeks, source string) (*Compiled, error) {
	raw, err := parse(source)
	if err != nil {
		return nil, err
	}
	if raw.Document.ID != "" {
		// The field is validated for well-formedness only, not
		// cross-checked against dirID: Apply takes dirID as an explicit
		// parameter the way directory.Replace does, so the directory
		// identity is always the caller's to assign, never a value
		// trusted from inside the file being applied.
		if _, err := id.ParseDocumentUUID(raw.Document.ID); err != nil {
			return nil, apierror.Wrap(apierror.CodeInvalidDocument, "invalid [authly-document] id", err)
		}
	}

	c := &compiler{
		dirID:          dirID,
		dirKey:         dirKey,
		deks:           deks,
		ns:             lang.NewNamespace(),
		policiesByName: map[string]id.ID{},
	}
	if err := seedBuiltins(c.ns); err != nil {
		return nil, apierror.Wrap(apierror.CodeInvalidDocument, "seed builtin namespace", err)
	}

	if err := c.compileProperties(raw.Property); err != nil {
		return nil, err
	}
	if err := c.compileServices(raw.Service); err != nil {
		return nil, err
	}
	if err := c.compileGroups(raw.Group); err != nil {
		return nil, err
	}
	if err := c.compileDomains(raw.Domain); err != nil {
		return nil, err
	}
	if err := c.compilePersonas(ctx, raw.Persona); err != nil {
		return nil, err
	}
	if err := c.compilePolicies(raw.Policy); err != nil {
		return nil, err
	}
	if err := c.compilePolicyBindings(raw.PolicyBinding); err != nil {
		return nil, err
	}

	return &Compiled{
		DirID:            dirID,
		DirKey:           dirKey,
		ContentSum:       blake3.Sum256([]byte(source)),
		GroupEIDs:        c.groupEIDs,
		InsertStatements: c.insertStatements(),
	}, nil
}

func (c *compiler) defineProperty(label string, kind directory.PropertyKind, tags []string) error {
	propID := deriveID(c.dirID, id.KindProperty, "property/"+label)
	if err := c.ns.Define(label, lang.NamespaceEntry{Kind: lang.EntryProperty, PropID: propID}); err != nil {
		return apierror.Wrap(apierror.CodeInvalidDocument, "duplicate property label", err)
	}
	c.properties = append(c.properties, compiledProperty{id: propID, kind: kind, label: label})
	for _, tag := range tags {
		attrID := deriveID(c.dirID, id.KindAttribute, "attribute/"+label+"/"+tag)
		compoundKey := label + "/" + tag
		if err := c.ns.Define(compoundKey, lang.NamespaceEntry{Kind: lang.EntryAttribute, PropID: propID, AttrID: attrID}); err != nil {
			return apierror.Wrap(apierror.CodeInvalidDocument, "duplicate attribute label", err)
		}
		c.attributes = append(c.attributes, compiledAttribute{id: attrID, propID: propID, label: tag})
	}
	return nil
}

func (c *compiler) compileProperties(props []rawProperty) error {
	for _, p := range props {
		kind := directory.PropertyEntity
		if p.Kind == "resource" {
			kind = directory.PropertyResource
		}
		if err := c.defineProperty(p.Label, kind, p.Tags); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) assignAttrs(eid id.ID, labels []string) error {
	for _, label := range labels {
		attrID, err := resolveAttrLabel(c.ns, label)
		if err != nil {
			return apierror.Wrap(apierror.CodeInvalidDocument, "resolve entity attribute", err)
		}
		c.entAttrs = append(c.entAttrs, compiledEntityAttr{eid: eid, attrID: attrID})
	}
	return nil
}

func (c *compiler) compileServices(services []rawService) error {
	// Properties nested under a service are registered before any service's
	// attrs list is resolved, so a later service may reference an earlier
	// service's entityprop/resourceprop declarations.
	for _, svc := range services {
		for _, p := range svc.EntityProp {
			if err := c.defineProperty(p.Label, directory.PropertyEntity, p.Tags); err != nil {
				return err
			}
		}
		for _, p := range svc.ResourceProp {
			if err := c.defineProperty(p.Label, directory.PropertyResource, p.Tags); err != nil {
				return err
			}
		}
	}
	for _, svc := range services {
		eid, err := entryID(c.dirID, id.KindService, svc.Ref, "service/"+svc.Name)
		if err != nil {
			return apierror.Wrap(apierror.CodeInvalidDocument, "service ref", err)
		}
		if err := c.ns.Define(svc.Name, lang.NamespaceEntry{Kind: lang.EntryEntity, EntityID: eid}); err != nil {
			return apierror.Wrap(apierror.CodeInvalidDocument, "duplicate service label", err)
		}
		c.services = append(c.services, directory.Service{EID: eid, Label: svc.Name, Hosts: svc.Hosts})
		for _, k := range svc.Kubernetes {
			c.k8sAccounts = append(c.k8sAccounts, struct {
				eid                 id.ID
				namespace, account string
			}{eid: eid, namespace: k.Namespace, account: k.AccountName})
		}
		if err := c.assignAttrs(eid, svc.Attrs); err != nil {
			return err
		}
	}
	return nil
}

// compileGroups registers each group as a namespace entity and materializes
// its attrs as ent_attr rows under its derived id. There is no persisted
// group identity table (the schema has none), which is fine: ent_attr's
// eid column carries no foreign key, and the access-control engine only
// ever reads an entity's attribute set, never a group's own row.
func (c *compiler) compileGroups(groups []rawGroup) error {
	for _, g := range groups {
		eid, err := entryID(c.dirID, id.KindGroup, g.Ref, "group/"+g.Name)
		if err != nil {
			return apierror.Wrap(apierror.CodeInvalidDocument, "group ref", err)
		}
		if err := c.ns.Define(g.Name, lang.NamespaceEntry{Kind: lang.EntryEntity, EntityID: eid}); err != nil {
			return apierror.Wrap(apierror.CodeInvalidDocument, "duplicate group label", err)
		}
		c.groupEIDs = append(c.groupEIDs, eid)
		if err := c.assignAttrs(eid, g.Attrs); err != nil {
			return err
		}
	}
	return nil
}

// compileDomains registers each domain as a namespace entity only; the
// schema carries no domain-routing table beyond svc_host; a domain entry
// exists purely so policies can name it (e.g. "Resource.domain == foo").
func (c *compiler) compileDomains(domains []rawDomain) error {
	for _, d := range domains {
		eid, err := entryID(c.dirID, id.KindDomain, d.Ref, "domain/"+d.Name)
		if err != nil {
			return apierror.Wrap(apierror.CodeInvalidDocument, "domain ref", err)
		}
		if err := c.ns.Define(d.Name, lang.NamespaceEntry{Kind: lang.EntryEntity, EntityID: eid}); err != nil {
			return apierror.Wrap(apierror.CodeInvalidDocument, "duplicate domain label", err)
		}
	}
	return nil
}

func (c *compiler) compilePersonas(ctx context.Context, personas []rawPersona) error {
	type hashJob struct {
		idx      int
		password string
	}
	var jobs []hashJob

	for _, p := range personas {
		eid, err := entryID(c.dirID, id.KindPersona, p.Ref, "persona/"+p.Name)
		if err != nil {
			return apierror.Wrap(apierror.CodeInvalidDocument, "persona ref", err)
		}
		if err := c.ns.Define(p.Name, lang.NamespaceEntry{Kind: lang.EntryEntity, EntityID: eid}); err != nil {
			return apierror.Wrap(apierror.CodeInvalidDocument, "duplicate persona label", err)
		}
		c.personas = append(c.personas, directory.Persona{EID: eid, Label: p.Name})

		if p.Username != "" {
			if err := c.encryptIdent(eid, id.PropUsername, p.Username); err != nil {
				return err
			}
		}
		if p.Email != "" {
			if err := c.encryptIdent(eid, id.PropEmail, p.Email); err != nil {
				return err
			}
		}
		if p.Password != "" {
			jobs = append(jobs, hashJob{idx: len(c.passwords), password: p.Password})
			c.passwords = append(c.passwords, struct {
				eid  id.ID
				hash string
			}{eid: eid})
		}
		if err := c.assignAttrs(eid, p.Attrs); err != nil {
			return err
		}
	}

	if len(jobs) == 0 {
		return nil
	}

	// Hashing runs off the main compile path: each persona's Argon2id
	// derivation is independent, so a goroutine per job lets the N hashes
	// overlap instead of serializing ~100ms-class work N times over.
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs *multierror.Error
	for _, job := range jobs {
		job := job
		wg.Add(1)
		go func() {
			defer wg.Done()
			hash, err := crypto.HashPassword(job.password)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierror.Append(errs, err)
				return
			}
			c.passwords[job.idx].hash = hash
		}()
	}
	wg.Wait()
	if err := errs.ErrorOrNil(); err != nil {
		return apierror.Wrap(apierror.CodeInternal, "hash persona passwords", err)
	}
	return nil
}

func (c *compiler) encryptIdent(eid id.ID, prop id.BuiltinProp, plaintext string) error {
	dek, ok := c.deks.Get(prop)
	if !ok {
		return apierror.New(apierror.CodeMissingDek, "no dek loaded for "+prop.Label())
	}
	ident, err := crypto.EncryptIdent(dek, plaintext)
	if err != nil {
		return err
	}
	c.idents = append(c.idents, struct {
		obj   id.ID
		prop  id.BuiltinProp
		ident crypto.Ident
	}{obj: eid, prop: prop, ident: ident})
	return nil
}

func (c *compiler) compilePolicies(policies []rawPolicy) error {
	for _, p := range policies {
		policyID, err := entryID(c.dirID, id.KindPolicy, p.Ref, "policy/"+p.Label)
		if err != nil {
			return apierror.Wrap(apierror.CodeInvalidDocument, "policy ref", err)
		}
		if _, exists := c.policiesByName[p.Label]; exists {
			return apierror.New(apierror.CodeInvalidDocument, "duplicate policy label "+p.Label)
		}
		expr, err := lang.Resolve(p.Allow, c.ns)
		if err != nil {
			return apierror.Wrap(apierror.CodeInvalidDocument, "resolve policy "+p.Label, err)
		}
		prog := lang.Compile(expr)
		c.policies = append(c.policies, directory.Policy{
			ID: policyID, DirID: c.dirID, Label: p.Label, Expression: code.Encode(prog),
		})
		c.policiesByName[p.Label] = policyID
	}
	return nil
}

func (c *compiler) compilePolicyBindings(bindings []rawPolicyBinding) error {
	for _, b := range bindings {
		var attrIDs []id.ID
		for _, label := range b.Attrs {
			attrID, err := resolveAttrLabel(c.ns, label)
			if err != nil {
				return apierror.Wrap(apierror.CodeInvalidDocument, "resolve policy binding attribute", err)
			}
			attrIDs = append(attrIDs, attrID)
		}
		var policyIDs []id.ID
		for _, label := range b.Policies {
			policyID, ok := c.policiesByName[label]
			if !ok {
				return apierror.Wrap(apierror.CodeInvalidDocument, "resolve policy binding policy",
					&unknownPolicyLabelError{label: label})
			}
			policyIDs = append(policyIDs, policyID)
		}
		c.bindings = append(c.bindings, directory.PolicyBinding{AttrIDs: attrIDs, PolicyIDs: policyIDs})
	}
	return nil
}

// randomBindingKey draws a binding key from the CSPRNG rather than a
// per-document counter: policy_trigger/policy_trigger_policy rows are
// looked up by binding_key alone, with no dir_id column of their own, so a
// predictable per-document sequence risks two directories landing on the
// same key. A random 63-bit key makes that collision practically
// impossible without adding a migration to scope the existing tables.
func randomBindingKey() int64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	v := int64(binary.BigEndian.Uint64(b[:]))
	if v < 0 {
		v = -v
	}
	return v
}
