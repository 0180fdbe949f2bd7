package exception

// Dashboard counts requests for reporting. ByApprover only counts
// completed decisions.
type Dashboard struct {
	Total           int            `json:"total"`
	ByType          map[Type]int   `json:"by_type"`
	ByRequestor     map[string]int `json:"by_requestor"`
	ByApprover      map[string]int `json:"by_approver"`
	ByStatus        map[Status]int `json:"by_status"`
	ByPolicyVersion map[string]int `json:"by_policy_version"`
}

// Dashboard folds the current requests into counts. It never changes
// router state.
func (r *Router) Dashboard() Dashboard {
	d := Dashboard{
		ByType:          make(map[Type]int),
		ByRequestor:     make(map[string]int),
		ByApprover:      make(map[string]int),
		ByStatus:        make(map[Status]int),
		ByPolicyVersion: make(map[string]int),
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, req := range r.requests {
		d.Total++
		d.ByType[req.Type]++
		d.ByRequestor[req.Requestor]++
		d.ByStatus[req.Status]++
		if req.PolicyVersion != "" {
			d.ByPolicyVersion[req.PolicyVersion]++
		}
		if !req.Status.Terminal() {
			continue
		}
		for _, event := range req.Events {
			d.ByApprover[event.ApproverID]++
		}
	}
	return d
}
