package server

import (
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/rpc/common"
)

// Table commands. Every handler calls the store synchronously and maps the
// outcome to exactly one response.

func (s *Service) get(r *common.Get) *common.CommandResponse {
	val, ok, err := s.store.Get(r.Table, r.Key)
	if err != nil {
		return common.NewErrorResponse(err)
	}
	if !ok {
		return common.NewErrorResponse(store.NewNotFoundError(r.Table, r.Key))
	}
	return common.NewValuesResponse(val)
}

func (s *Service) set(r *common.Set) *common.CommandResponse {
	prev, existed, err := s.store.Set(r.Table, r.Pair.Key, r.Pair.Value)
	if err != nil {
		return common.NewErrorResponse(err)
	}
	if !existed {
		return common.NewOKResponse()
	}
	return common.NewValuesResponse(prev)
}

func (s *Service) getAll(r *common.GetAll) *common.CommandResponse {
	pairs, err := s.store.GetAll(r.Table)
	if err != nil {
		return common.NewErrorResponse(err)
	}
	return common.NewPairsResponse(pairs)
}

// multiGet answers one value per key in request order, a none value marks a missing key
func (s *Service) multiGet(r *common.MultiGet) *common.CommandResponse {
	values := make([]store.Value, len(r.Keys))
	found := 0
	for i, key := range r.Keys {
		val, ok, err := s.store.Get(r.Table, key)
		if err != nil {
			return common.NewErrorResponse(err)
		}
		if ok {
			values[i] = val
			found++
		}
	}
	if found == 0 {
		return &common.CommandResponse{Status: common.StatusNoContent, Values: values}
	}
	return common.NewValuesResponse(values...)
}

func (s *Service) multiSet(r *common.MultiSet) *common.CommandResponse {
	prevs := make([]store.Value, len(r.Pairs))
	for i, pair := range r.Pairs {
		prev, existed, err := s.store.Set(r.Table, pair.Key, pair.Value)
		if err != nil {
			return common.NewErrorResponse(err)
		}
		if existed {
			prevs[i] = prev
		}
	}
	return common.NewValuesResponse(prevs...)
}

func (s *Service) delete(r *common.Delete) *common.CommandResponse {
	prev, existed, err := s.store.Delete(r.Table, r.Key)
	if err != nil {
		return common.NewErrorResponse(err)
	}
	if !existed {
		return common.NewErrorResponse(store.NewNotFoundError(r.Table, r.Key))
	}
	return common.NewValuesResponse(prev)
}

func (s *Service) multiDelete(r *common.MultiDelete) *common.CommandResponse {
	prevs := make([]store.Value, len(r.Keys))
	deleted := 0
	for i, key := range r.Keys {
		prev, existed, err := s.store.Delete(r.Table, key)
		if err != nil {
			return common.NewErrorResponse(err)
		}
		if existed {
			prevs[i] = prev
			deleted++
		}
	}
	if deleted == 0 {
		return &common.CommandResponse{Status: common.StatusNoContent, Values: prevs}
	}
	return common.NewValuesResponse(prevs...)
}

func (s *Service) exists(r *common.Exists) *common.CommandResponse {
	ok, err := s.store.Contains(r.Table, r.Key)
	if err != nil {
		return common.NewErrorResponse(err)
	}
	return common.NewValuesResponse(store.BoolValue(ok))
}

func (s *Service) multiExists(r *common.MultiExists) *common.CommandResponse {
	values := make([]store.Value, len(r.Keys))
	for i, key := range r.Keys {
		ok, err := s.store.Contains(r.Table, key)
		if err != nil {
			return common.NewErrorResponse(err)
		}
		values[i] = store.BoolValue(ok)
	}
	return common.NewValuesResponse(values...)
}
